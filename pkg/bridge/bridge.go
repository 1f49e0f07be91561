package bridge

import (
	"context"
	"math"
	"sync/atomic"

	gameserver "github.com/sessamekesh/proximity-voice-bridge/pkg/message/game_server"
)

// HearingConfig is the hearing distance last announced by the game server.
// It starts at 0, which mutes everyone until a serverConfig arrives.
type HearingConfig struct {
	bits atomic.Uint64
}

func (c *HearingConfig) MaxHearingDistance() float64 {
	return math.Float64frombits(c.bits.Load())
}

func (c *HearingConfig) SetMaxHearingDistance(distance float64) {
	c.bits.Store(math.Float64bits(distance))
}

// VoiceSessionHandler is the voice session side of the bridge: it consumes
// messages from the game server and produces replies for it.
type VoiceSessionHandler struct {
	Name string

	IncomingMessageChannel <-chan *gameserver.GameServerMessage
	OutgoingMessageChannel chan<- *gameserver.GameServerMessage

	Hearing *HearingConfig
}

// ServerLinkHandler is the game server side of the bridge.
type ServerLinkHandler struct {
	Name string

	IncomingMessageChannel chan<- *gameserver.GameServerMessage
	OutgoingMessageChannel <-chan *gameserver.GameServerMessage

	Hearing *HearingConfig
}

type BridgeConfig struct {
	InboundBufferLength  int
	OutboundBufferLength int
}

// Bridge owns the two directed queues between the voice session driver and
// the server link driver. Build one per process and hand its handlers to
// the drivers.
type Bridge struct {
	inbound  chan *gameserver.GameServerMessage
	outbound chan *gameserver.GameServerMessage

	hearing *HearingConfig
}

func CreateBridge(config BridgeConfig) *Bridge {
	inboundBufferLength := 256
	outboundBufferLength := 256

	if config.InboundBufferLength > 0 {
		inboundBufferLength = config.InboundBufferLength
	}
	if config.OutboundBufferLength > 0 {
		outboundBufferLength = config.OutboundBufferLength
	}

	return &Bridge{
		inbound:  make(chan *gameserver.GameServerMessage, inboundBufferLength),
		outbound: make(chan *gameserver.GameServerMessage, outboundBufferLength),
		hearing:  &HearingConfig{},
	}
}

func (b *Bridge) Hearing() *HearingConfig {
	return b.hearing
}

func (b *Bridge) CreateVoiceSessionHandler(name string) *VoiceSessionHandler {
	return &VoiceSessionHandler{
		Name:                   name,
		IncomingMessageChannel: b.inbound,
		OutgoingMessageChannel: b.outbound,
		Hearing:                b.hearing,
	}
}

func (b *Bridge) CreateServerLinkHandler(name string) *ServerLinkHandler {
	return &ServerLinkHandler{
		Name:                   name,
		IncomingMessageChannel: b.inbound,
		OutgoingMessageChannel: b.outbound,
		Hearing:                b.hearing,
	}
}

// Push appends msg to queue, waiting for room if the buffer is full.
func Push(ctx context.Context, queue chan<- *gameserver.GameServerMessage, msg *gameserver.GameServerMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case queue <- msg:
		return nil
	}
}

// TryPush appends msg to queue only if there is room, reporting whether it did.
func TryPush(queue chan<- *gameserver.GameServerMessage, msg *gameserver.GameServerMessage) bool {
	select {
	case queue <- msg:
		return true
	default:
		return false
	}
}

// Drain returns every message currently queued, oldest first, without
// blocking. The returned messages are no longer in the queue.
func Drain(queue <-chan *gameserver.GameServerMessage) []*gameserver.GameServerMessage {
	drained := []*gameserver.GameServerMessage{}
	for {
		select {
		case msg, ok := <-queue:
			if !ok {
				return drained
			}
			drained = append(drained, msg)
		default:
			return drained
		}
	}
}

func (h *VoiceSessionHandler) Drain() []*gameserver.GameServerMessage {
	return Drain(h.IncomingMessageChannel)
}

func (h *VoiceSessionHandler) Push(ctx context.Context, msg *gameserver.GameServerMessage) error {
	return Push(ctx, h.OutgoingMessageChannel, msg)
}

func (h *VoiceSessionHandler) TryPush(msg *gameserver.GameServerMessage) bool {
	return TryPush(h.OutgoingMessageChannel, msg)
}

func (h *ServerLinkHandler) Drain() []*gameserver.GameServerMessage {
	return Drain(h.OutgoingMessageChannel)
}

func (h *ServerLinkHandler) Push(ctx context.Context, msg *gameserver.GameServerMessage) error {
	return Push(ctx, h.IncomingMessageChannel, msg)
}
