package voice

import (
	"context"
	goerrs "errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/sessamekesh/proximity-voice-bridge/internal"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/bridge"
	gameserver "github.com/sessamekesh/proximity-voice-bridge/pkg/message/game_server"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/spatial"
	"go.uber.org/zap"
)

type Phase int32

const (
	Phase_Initializing Phase = iota
	Phase_Connected
)

const connectLobbyAttempts = 2

type VoiceSessionDriverParams struct {
	Session     Session
	Handler     *bridge.VoiceSessionHandler
	MemberStore *internal.MemberStore

	TickInterval time.Duration

	// Called once, on the driver goroutine, when the session user resolves.
	OnConnected func(user User)

	Logger *zap.Logger
	Stdout io.Writer
}

type voiceSessionDriver struct {
	params VoiceSessionDriverParams

	session     Session
	handler     *bridge.VoiceSessionHandler
	memberStore *internal.MemberStore

	log    *zap.Logger
	stdout io.Writer

	phase atomic.Int32
	user  User

	// Completion checks for in-flight async session calls. Only touched on
	// the driver goroutine.
	pending []func() bool
}

func CreateVoiceSessionDriver(params VoiceSessionDriverParams) (*voiceSessionDriver, error) {
	if params.Session == nil {
		return nil, goerrs.New("voice session driver needs a Session")
	}
	if params.Handler == nil {
		return nil, goerrs.New("voice session driver needs a bridge handler")
	}

	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	memberStore := params.MemberStore
	if memberStore == nil {
		memberStore = internal.CreateMemberStore()
	}
	stdout := params.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	if params.TickInterval <= 0 {
		params.TickInterval = 5 * time.Millisecond
	}

	return &voiceSessionDriver{
		params:      params,
		session:     params.Session,
		handler:     params.Handler,
		memberStore: memberStore,
		log:         logger.With(zap.String("handler", "VoiceSessionDriver")),
		stdout:      stdout,
	}, nil
}

func (d *voiceSessionDriver) Phase() Phase {
	return Phase(d.phase.Load())
}

// Start runs the tick loop until ctx is cancelled.
func (d *voiceSessionDriver) Start(ctx context.Context) error {
	d.session.OnMemberConnect(d.onMemberConnect)

	ticker := time.NewTicker(d.params.TickInterval)
	defer ticker.Stop()

	d.log.Info("Starting voice session driver", zap.Duration("tickInterval", d.params.TickInterval))
	defer d.log.Info("Stopping voice session driver")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *voiceSessionDriver) tick() {
	if err := d.session.RunCallbacks(); err != nil {
		d.log.Warn("Voice session callbacks failed", zap.Error(err))
	}
	d.pollPending()

	switch d.Phase() {
	case Phase_Initializing:
		user, err := d.session.CurrentUser()
		if err != nil {
			return
		}
		d.user = user
		d.phase.Store(int32(Phase_Connected))
		d.log.Info("Voice session connected",
			zap.Int64("userId", user.Id),
			zap.String("username", user.Username))
		if d.params.OnConnected != nil {
			d.params.OnConnected(user)
		}
	case Phase_Connected:
		for _, msg := range d.handler.Drain() {
			d.handleMessage(msg)
		}
	}
}

func await[T any](d *voiceSessionDriver, result <-chan T, onResult func(T)) {
	d.pending = append(d.pending, func() bool {
		select {
		case r := <-result:
			onResult(r)
			return true
		default:
			return false
		}
	})
}

func (d *voiceSessionDriver) pollPending() {
	inFlight := d.pending
	d.pending = nil
	for _, poll := range inFlight {
		if !poll() {
			d.pending = append(d.pending, poll)
		}
	}
}

func (d *voiceSessionDriver) handleMessage(msg *gameserver.GameServerMessage) {
	switch msg.MessageType {
	case gameserver.GameServerMessageType_ServerConfig:
		d.handleServerConfig(msg.ServerConfig)
	case gameserver.GameServerMessageType_CreateLobbyRequest:
		d.handleCreateLobby()
	case gameserver.GameServerMessageType_ConnectLobby:
		d.handleConnectLobby(msg.ConnectLobby)
	case gameserver.GameServerMessageType_PlayersPosition:
		d.handlePlayersPosition(msg.PlayersPosition)
	default:
		d.log.Debug("Ignoring message not meant for the voice session", zap.Stringer("messageType", msg.MessageType))
	}
}

func (d *voiceSessionDriver) handleServerConfig(config *gameserver.ServerConfig) {
	d.handler.Hearing.SetMaxHearingDistance(config.MaxHearingDistance)
	if !(config.MaxHearingDistance > 0) {
		d.log.Warn("Hearing distance is not positive, every player will be muted", zap.Float64("maxHearingDistance", config.MaxHearingDistance))
		return
	}
	d.log.Info("Hearing distance updated", zap.Float64("maxHearingDistance", config.MaxHearingDistance))
}

func (d *voiceSessionDriver) handleCreateLobby() {
	await(d, d.session.CreateLobby(), func(result LobbyResult) {
		if result.Err != nil {
			d.log.Error("Failed to create voice lobby", zap.Error(result.Err))
			return
		}

		log := d.log.With(zap.Int64("lobbyId", result.Lobby.Id))
		log.Info("Created voice lobby")
		d.memberStore.SetActiveLobby(result.Lobby.Id, result.Lobby.Secret)

		if !d.handler.TryPush(gameserver.NewCreateLobbyResult(result.Lobby.Id, result.Lobby.Secret)) {
			log.Warn("Outbound queue is full, dropping lobby result for the game server")
		}

		d.connectLobbyVoice(result.Lobby.Id, false)
	})
}

func (d *voiceSessionDriver) handleConnectLobby(lobby *gameserver.Lobby) {
	active, err := d.memberStore.GetActiveLobby()
	if err == nil && active.Id == lobby.Id && active.VoiceConnected {
		d.log.Debug("Already in this voice lobby, ignoring connect request", zap.Int64("lobbyId", lobby.Id))
		return
	}
	d.connectLobby(lobby.Id, lobby.Secret, 1)
}

func (d *voiceSessionDriver) connectLobby(lobbyId int64, secret string, attempt int) {
	log := d.log.With(zap.Int64("lobbyId", lobbyId), zap.Int("attempt", attempt))

	await(d, d.session.ConnectLobby(lobbyId, secret), func(result LobbyResult) {
		if result.Err != nil {
			if attempt < connectLobbyAttempts {
				log.Warn("Failed to join voice lobby, retrying", zap.Error(result.Err))
				d.connectLobby(lobbyId, secret, attempt+1)
				return
			}
			log.Error("Failed to join voice lobby", zap.Error(result.Err))
			return
		}

		log.Info("Joined voice lobby")
		d.memberStore.SetActiveLobby(lobbyId, secret)
		d.connectLobbyVoice(lobbyId, true)
	})
}

// connectLobbyVoice joins the lobby's voice channel. Members already present
// are muted when muteMembers is set; later joiners are muted by
// onMemberConnect.
func (d *voiceSessionDriver) connectLobbyVoice(lobbyId int64, muteMembers bool) {
	log := d.log.With(zap.Int64("lobbyId", lobbyId))

	await(d, d.session.ConnectLobbyVoice(lobbyId), func(err error) {
		if err != nil {
			log.Error("Failed to connect to lobby voice", zap.Error(err))
			return
		}

		if storeErr := d.memberStore.SetVoiceConnected(lobbyId); storeErr != nil {
			log.Warn("Lobby voice connected for a lobby that is no longer active", zap.Error(storeErr))
		}
		fmt.Fprintln(d.stdout, "Connected to the voice lobby")

		if !muteMembers {
			return
		}

		memberIds, err := d.session.LobbyMemberIds(lobbyId)
		if err != nil {
			log.Error("Failed to list lobby members", zap.Error(err))
			return
		}
		for _, memberId := range memberIds {
			if memberId == d.user.Id {
				continue
			}
			d.setVolume(memberId, 0, true)
		}
	})
}

func (d *voiceSessionDriver) onMemberConnect(lobbyId int64, memberId int64) {
	if memberId == d.user.Id {
		return
	}

	d.log.Debug("Lobby member connected, muting until positioned",
		zap.Int64("lobbyId", lobbyId),
		zap.Int64("memberId", memberId))
	d.setVolume(memberId, 0, true)
}

func (d *voiceSessionDriver) handlePlayersPosition(report *gameserver.PlayersPosition) {
	self, has := report.Positions[d.user.Id]
	if !has {
		d.log.Debug("Position report does not include the local player, assuming the world origin", zap.Int("players", len(report.Positions)))
		self = spatial.DefaultPosition()
	}

	maxHearingDistance := d.handler.Hearing.MaxHearingDistance()
	for memberId, position := range report.Positions {
		if memberId == d.user.Id {
			continue
		}
		d.setVolume(memberId, spatial.Volume(self, position, maxHearingDistance), false)
	}
}

// setVolume is fire and forget: a failed override is logged and the next
// position report tries again. Unless force is set, a member already at
// volume is left alone.
func (d *voiceSessionDriver) setVolume(memberId int64, volume uint8, force bool) {
	if current, err := d.memberStore.GetVolume(memberId); !force && err == nil && current == volume {
		return
	}

	if err := d.session.SetLocalVolume(memberId, volume); err != nil {
		d.log.Warn("Failed to set local volume",
			zap.Int64("memberId", memberId),
			zap.Uint8("volume", volume),
			zap.Error(err))
		return
	}

	if d.memberStore.SetVolume(memberId, volume) {
		d.log.Debug("Local volume changed",
			zap.Int64("memberId", memberId),
			zap.Uint8("volume", volume))
	}
}
