package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	gameserver "github.com/sessamekesh/proximity-voice-bridge/pkg/message/game_server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrain_EmptyQueue(t *testing.T) {
	b := CreateBridge(BridgeConfig{})
	voice := b.CreateVoiceSessionHandler("voice")

	first := voice.Drain()
	assert.NotNil(t, first)
	assert.Empty(t, first)
	assert.Empty(t, voice.Drain())
}

func TestDrain_TwiceWithoutPush(t *testing.T) {
	b := CreateBridge(BridgeConfig{})
	link := b.CreateServerLinkHandler("link")
	voice := b.CreateVoiceSessionHandler("voice")

	require.NoError(t, link.Push(context.Background(), gameserver.NewCreateLobbyRequest()))

	assert.Len(t, voice.Drain(), 1)
	assert.Empty(t, voice.Drain())
}

func TestDrain_PreservesPushOrder(t *testing.T) {
	b := CreateBridge(BridgeConfig{})
	link := b.CreateServerLinkHandler("link")
	voice := b.CreateVoiceSessionHandler("voice")
	ctx := context.Background()

	a := gameserver.NewServerConfig(10)
	bb := gameserver.NewCreateLobbyRequest()
	c := gameserver.NewConnectLobby(4, "4:s")

	require.NoError(t, link.Push(ctx, a))
	require.NoError(t, link.Push(ctx, bb))
	require.NoError(t, link.Push(ctx, c))

	drained := voice.Drain()
	require.Len(t, drained, 3)
	assert.Same(t, a, drained[0])
	assert.Same(t, bb, drained[1])
	assert.Same(t, c, drained[2])
}

func TestQueues_AreDirected(t *testing.T) {
	b := CreateBridge(BridgeConfig{})
	link := b.CreateServerLinkHandler("link")
	voice := b.CreateVoiceSessionHandler("voice")
	ctx := context.Background()

	require.NoError(t, voice.Push(ctx, gameserver.NewCreateLobbyResult(1, "1:s")))

	assert.Empty(t, voice.Drain())
	outbound := link.Drain()
	require.Len(t, outbound, 1)
	assert.Equal(t, gameserver.GameServerMessageType_CreateLobbyResult, outbound[0].MessageType)
}

func TestPush_FullQueueHonoursContext(t *testing.T) {
	b := CreateBridge(BridgeConfig{InboundBufferLength: 1})
	link := b.CreateServerLinkHandler("link")

	require.NoError(t, link.Push(context.Background(), gameserver.NewEnd()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, link.Push(ctx, gameserver.NewEnd()), context.DeadlineExceeded)
}

func TestDrain_NothingLostUnderConcurrentPush(t *testing.T) {
	b := CreateBridge(BridgeConfig{InboundBufferLength: 8})
	link := b.CreateServerLinkHandler("link")
	voice := b.CreateVoiceSessionHandler("voice")

	const total = 500
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			_ = link.Push(context.Background(), gameserver.NewLinkCode(uint64(i)))
		}
	}()

	received := []uint64{}
	deadline := time.Now().Add(5 * time.Second)
	for len(received) < total && time.Now().Before(deadline) {
		for _, msg := range voice.Drain() {
			received = append(received, msg.LinkCode.Code)
		}
	}
	wg.Wait()

	require.Len(t, received, total)
	for i, code := range received {
		assert.Equal(t, uint64(i), code)
	}
}

func TestHearingConfig(t *testing.T) {
	b := CreateBridge(BridgeConfig{})
	assert.Zero(t, b.Hearing().MaxHearingDistance())

	b.Hearing().SetMaxHearingDistance(42.5)
	assert.Equal(t, 42.5, b.CreateVoiceSessionHandler("voice").Hearing.MaxHearingDistance())
}

func TestTryPush_DropsWhenFull(t *testing.T) {
	b := CreateBridge(BridgeConfig{OutboundBufferLength: 1})
	voice := b.CreateVoiceSessionHandler("voice")
	link := b.CreateServerLinkHandler("link")

	assert.True(t, voice.TryPush(gameserver.NewCreateLobbyResult(1, "1:a")))
	assert.False(t, voice.TryPush(gameserver.NewCreateLobbyResult(2, "2:a")))

	drained := link.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, int64(1), drained[0].CreateLobbyResult.Id)

	assert.True(t, voice.TryPush(gameserver.NewEnd()))
}
