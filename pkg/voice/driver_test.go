package voice

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sessamekesh/proximity-voice-bridge/internal"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/bridge"
	gameserver "github.com/sessamekesh/proximity-voice-bridge/pkg/message/game_server"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const selfId int64 = 1001

type syncBuffer struct {
	mut sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mut.Lock()
	defer b.mut.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mut.Lock()
	defer b.mut.Unlock()
	return b.buf.String()
}

type driverHarness struct {
	bridge      *bridge.Bridge
	session     *LocalSession
	link        *bridge.ServerLinkHandler
	memberStore *internal.MemberStore
	stdout      *syncBuffer
	connected   chan User
	driver      *voiceSessionDriver
}

func startDriver(t *testing.T) *driverHarness {
	t.Helper()
	return startDriverWithBridge(t, bridge.BridgeConfig{})
}

func startDriverWithBridge(t *testing.T, config bridge.BridgeConfig) *driverHarness {
	t.Helper()

	logger := zaptest.NewLogger(t)
	b := bridge.CreateBridge(config)
	h := &driverHarness{
		bridge: b,
		session: CreateLocalSession(LocalSessionParams{
			ApplicationId:     42,
			User:              User{Id: selfId, Username: "steve", Discriminator: "0001"},
			AuthenticateAfter: 2,
			Logger:            logger,
		}),
		link:        b.CreateServerLinkHandler("test"),
		memberStore: internal.CreateMemberStore(),
		stdout:      &syncBuffer{},
		connected:   make(chan User, 1),
	}

	driver, err := CreateVoiceSessionDriver(VoiceSessionDriverParams{
		Session:      h.session,
		Handler:      b.CreateVoiceSessionHandler("test"),
		MemberStore:  h.memberStore,
		TickInterval: time.Millisecond,
		OnConnected:  func(user User) { h.connected <- user },
		Logger:       logger,
		Stdout:       h.stdout,
	})
	require.NoError(t, err)
	h.driver = driver

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = driver.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case user := <-h.connected:
		require.Equal(t, selfId, user.Id)
	case <-time.After(2 * time.Second):
		t.Fatal("voice session never connected")
	}
	require.Equal(t, Phase_Connected, driver.Phase())

	return h
}

func (h *driverHarness) send(t *testing.T, msg *gameserver.GameServerMessage) {
	t.Helper()
	require.NoError(t, h.link.Push(context.Background(), msg))
}

func (h *driverHarness) requireVolume(t *testing.T, memberId int64, want uint8) {
	t.Helper()
	require.Eventually(t, func() bool {
		volume, has := h.session.LocalVolume(memberId)
		return has && volume == want
	}, 2*time.Second, time.Millisecond, "member %d never reached volume %d", memberId, want)
}

func TestCreateVoiceSessionDriver_RequiresSessionAndHandler(t *testing.T) {
	_, err := CreateVoiceSessionDriver(VoiceSessionDriverParams{})
	assert.Error(t, err)

	_, err = CreateVoiceSessionDriver(VoiceSessionDriverParams{Session: CreateLocalSession(LocalSessionParams{})})
	assert.Error(t, err)
}

func TestDriver_AppliesProximityVolumes(t *testing.T) {
	h := startDriver(t)

	h.send(t, gameserver.NewServerConfig(100))
	h.send(t, gameserver.NewPlayersPosition(map[spatial.PlayerId]spatial.Position{
		selfId: {World: "world"},
		2:      {World: "world", X: 50},
		3:      {World: "nether"},
		4:      {World: "world", X: 150},
		5:      {World: "world", Y: 0.0},
	}))

	h.requireVolume(t, 2, 28)
	h.requireVolume(t, 3, 0)
	h.requireVolume(t, 4, 0)
	h.requireVolume(t, 5, spatial.MaxVolume)

	_, touchedSelf := h.session.LocalVolume(selfId)
	assert.False(t, touchedSelf)
}

func TestDriver_DefaultHearingDistanceIsSilent(t *testing.T) {
	h := startDriver(t)

	h.send(t, gameserver.NewPlayersPosition(map[spatial.PlayerId]spatial.Position{
		selfId: {World: "world"},
		2:      {World: "world", X: 1},
	}))

	h.requireVolume(t, 2, 0)
}

func TestDriver_MissingLocalPlayerDefaultsToOrigin(t *testing.T) {
	h := startDriver(t)

	h.send(t, gameserver.NewServerConfig(100))
	h.send(t, gameserver.NewPlayersPosition(map[spatial.PlayerId]spatial.Position{
		2: {World: "world", X: 1},
		3: {World: "nether"},
	}))

	h.requireVolume(t, 2, 108)
	h.requireVolume(t, 3, 0)
}

func TestDriver_UnchangedVolumeIsNotReapplied(t *testing.T) {
	h := startDriver(t)

	report := map[spatial.PlayerId]spatial.Position{
		selfId: {World: "world"},
		2:      {World: "world", X: 50},
	}
	h.send(t, gameserver.NewServerConfig(100))
	h.send(t, gameserver.NewPlayersPosition(report))
	h.send(t, gameserver.NewPlayersPosition(report))
	h.send(t, gameserver.NewPlayersPosition(map[spatial.PlayerId]spatial.Position{
		selfId: {World: "world"},
		2:      {World: "world", X: 50},
		3:      {World: "world", X: 50},
	}))

	h.requireVolume(t, 3, 28)
	assert.Equal(t, 1, h.session.LocalVolumeSets(2))

	h.send(t, gameserver.NewPlayersPosition(map[spatial.PlayerId]spatial.Position{
		selfId: {World: "world"},
		2:      {World: "world"},
	}))

	h.requireVolume(t, 2, spatial.MaxVolume)
	assert.Equal(t, 2, h.session.LocalVolumeSets(2))
}

func TestDriver_CreateLobbyPublishesResult(t *testing.T) {
	h := startDriver(t)

	h.send(t, gameserver.NewCreateLobbyRequest())

	var result *gameserver.GameServerMessage
	require.Eventually(t, func() bool {
		for _, msg := range h.link.Drain() {
			result = msg
		}
		return result != nil
	}, 2*time.Second, time.Millisecond)

	require.Equal(t, gameserver.GameServerMessageType_CreateLobbyResult, result.MessageType)
	lobbyId := result.CreateLobbyResult.Id
	assert.Contains(t, result.CreateLobbyResult.Secret, "1:")

	require.Eventually(t, func() bool { return h.session.IsVoiceConnected(lobbyId) }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		lobby, err := h.memberStore.GetActiveLobby()
		return err == nil && lobby.Id == lobbyId && lobby.VoiceConnected
	}, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(h.stdout.String()), []byte("Connected to the voice lobby"))
	}, 2*time.Second, time.Millisecond)

	// Players joining later start muted.
	h.session.AddLobbyMember(lobbyId, 77)
	h.requireVolume(t, 77, 0)
}

func TestDriver_ConnectLobbyMutesExistingMembers(t *testing.T) {
	h := startDriver(t)
	h.session.SeedLobby(900, "900:secret", 11, 12)

	h.send(t, gameserver.NewConnectLobby(900, "900:secret"))

	h.requireVolume(t, 11, 0)
	h.requireVolume(t, 12, 0)
	require.Eventually(t, func() bool { return h.session.IsVoiceConnected(900) }, 2*time.Second, time.Millisecond)
	volume, err := h.memberStore.GetVolume(11)
	require.NoError(t, err)
	assert.Zero(t, volume)
	_, err = h.memberStore.GetVolume(selfId)
	assert.Error(t, err)
}

func TestDriver_RepeatedConnectLobbyIsIgnored(t *testing.T) {
	h := startDriver(t)
	h.session.SeedLobby(900, "900:secret", 11)

	h.send(t, gameserver.NewConnectLobby(900, "900:secret"))
	require.Eventually(t, func() bool {
		lobby, err := h.memberStore.GetActiveLobby()
		return err == nil && lobby.VoiceConnected && h.session.LocalVolumeSets(11) == 1
	}, 2*time.Second, time.Millisecond)

	h.send(t, gameserver.NewConnectLobby(900, "900:secret"))
	h.send(t, gameserver.NewServerConfig(100))
	h.send(t, gameserver.NewPlayersPosition(map[spatial.PlayerId]spatial.Position{
		selfId: {World: "world"},
		12:     {World: "world", X: 50},
	}))

	h.requireVolume(t, 12, 28)
	assert.Equal(t, 1, h.session.LocalVolumeSets(11))
}

func TestDriver_FullOutboundQueueDoesNotStall(t *testing.T) {
	h := startDriverWithBridge(t, bridge.BridgeConfig{OutboundBufferLength: 1})
	filler := h.bridge.CreateVoiceSessionHandler("filler")
	require.True(t, filler.TryPush(gameserver.NewEnd()))

	h.send(t, gameserver.NewCreateLobbyRequest())
	require.Eventually(t, func() bool { return h.session.IsVoiceConnected(1) }, 2*time.Second, time.Millisecond)

	h.send(t, gameserver.NewServerConfig(100))
	h.send(t, gameserver.NewPlayersPosition(map[spatial.PlayerId]spatial.Position{
		selfId: {World: "world"},
		2:      {World: "world", X: 50},
	}))
	h.requireVolume(t, 2, 28)

	outbound := h.link.Drain()
	require.Len(t, outbound, 1)
	assert.Equal(t, gameserver.GameServerMessageType_End, outbound[0].MessageType)
}

func TestDriver_ConnectLobbyRetriesOnce(t *testing.T) {
	h := startDriver(t)
	h.session.FailNextConnects(1)

	h.send(t, gameserver.NewConnectLobby(901, "901:secret"))

	require.Eventually(t, func() bool { return h.session.IsVoiceConnected(901) }, 2*time.Second, time.Millisecond)
}

func TestDriver_ConnectLobbyGivesUpAfterRetry(t *testing.T) {
	h := startDriver(t)
	h.session.FailNextConnects(2)

	h.send(t, gameserver.NewConnectLobby(902, "902:secret"))

	require.Never(t, func() bool { return h.session.IsVoiceConnected(902) }, 100*time.Millisecond, 5*time.Millisecond)
	_, err := h.memberStore.GetActiveLobby()
	assert.Error(t, err)
}
