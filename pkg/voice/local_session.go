package voice

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/errors"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/spatial"
	"go.uber.org/zap"
)

var _ Session = (*LocalSession)(nil)

type MissingLobbyError struct {
	LobbyId int64
}

func (e *MissingLobbyError) Error() string {
	return fmt.Sprintf("Missing voice lobby with id=%d", e.LobbyId)
}

type InvalidLobbySecretError struct {
	LobbyId int64
}

func (e *InvalidLobbySecretError) Error() string {
	return fmt.Sprintf("Invalid secret for voice lobby with id=%d", e.LobbyId)
}

type LocalSessionParams struct {
	ApplicationId int64
	User          User

	// Number of RunCallbacks calls before CurrentUser resolves.
	AuthenticateAfter int

	Logger *zap.Logger
}

type localLobby struct {
	secret  string
	members []int64
	voice   bool
}

// LocalSession is an in-process voice session. Lobbies live in memory and
// local volumes are recorded instead of applied to audio, which makes it
// usable for offline runs and as the session in tests.
type LocalSession struct {
	params LocalSessionParams
	log    *zap.Logger

	mut sync.Mutex

	callbackRuns  int
	authenticated bool

	pending []func()

	nextLobbyId int64
	lobbies     map[int64]*localLobby
	volumes     map[int64]uint8
	volumeSets  map[int64]int

	connectFailures int

	memberConnectHandlers []func(lobbyId int64, memberId int64)
}

func CreateLocalSession(params LocalSessionParams) *LocalSession {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	return &LocalSession{
		params:      params,
		log:         logger.With(zap.String("handler", "LocalVoiceSession"), zap.Int64("applicationId", params.ApplicationId)),
		nextLobbyId: 1,
		lobbies:     make(map[int64]*localLobby),
		volumes:     make(map[int64]uint8),
		volumeSets:  make(map[int64]int),
	}
}

func (s *LocalSession) enqueue(fn func()) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.pending = append(s.pending, fn)
}

func (s *LocalSession) CurrentUser() (User, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	if !s.authenticated {
		return User{}, ErrNotAuthenticated
	}
	return s.params.User, nil
}

func (s *LocalSession) RunCallbacks() error {
	s.mut.Lock()
	s.callbackRuns++
	if !s.authenticated && s.callbackRuns > s.params.AuthenticateAfter {
		s.authenticated = true
		s.log.Info("Local voice session authenticated", zap.Int64("userId", s.params.User.Id))
	}
	pending := s.pending
	s.pending = nil
	s.mut.Unlock()

	for _, fn := range pending {
		fn()
	}

	return nil
}

func (s *LocalSession) CreateLobby() <-chan LobbyResult {
	result := make(chan LobbyResult, 1)

	s.enqueue(func() {
		s.mut.Lock()
		defer s.mut.Unlock()

		id := s.nextLobbyId
		s.nextLobbyId++
		secret := fmt.Sprintf("%d:%s", id, uuid.NewString())

		s.lobbies[id] = &localLobby{
			secret:  secret,
			members: []int64{s.params.User.Id},
		}
		s.log.Debug("Created lobby", zap.Int64("lobbyId", id))

		result <- LobbyResult{Lobby: Lobby{Id: id, Secret: secret}}
	})

	return result
}

func (s *LocalSession) ConnectLobby(lobbyId int64, secret string) <-chan LobbyResult {
	result := make(chan LobbyResult, 1)

	s.enqueue(func() {
		s.mut.Lock()
		defer s.mut.Unlock()

		if s.connectFailures > 0 {
			s.connectFailures--
			result <- LobbyResult{Err: fmt.Errorf("lobby %d is unavailable", lobbyId)}
			return
		}

		lobby, has := s.lobbies[lobbyId]
		if !has {
			// Hosted by another client: register it as we first see it.
			lobby = &localLobby{secret: secret}
			s.lobbies[lobbyId] = lobby
		}
		if lobby.secret == "" {
			lobby.secret = secret
		}
		if lobby.secret != secret {
			result <- LobbyResult{Err: &InvalidLobbySecretError{LobbyId: lobbyId}}
			return
		}

		if !containsMember(lobby.members, s.params.User.Id) {
			lobby.members = append(lobby.members, s.params.User.Id)
		}

		result <- LobbyResult{Lobby: Lobby{Id: lobbyId, Secret: secret}}
	})

	return result
}

func (s *LocalSession) ConnectLobbyVoice(lobbyId int64) <-chan error {
	result := make(chan error, 1)

	s.enqueue(func() {
		s.mut.Lock()
		defer s.mut.Unlock()

		lobby, has := s.lobbies[lobbyId]
		if !has || !containsMember(lobby.members, s.params.User.Id) {
			result <- &MissingLobbyError{LobbyId: lobbyId}
			return
		}

		lobby.voice = true
		result <- nil
	})

	return result
}

func (s *LocalSession) SetLocalVolume(memberId int64, volume uint8) error {
	if volume > spatial.MaxVolume {
		return &errors.InvalidVolume{MemberId: memberId, Volume: int(volume)}
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	s.volumes[memberId] = volume
	s.volumeSets[memberId]++
	return nil
}

func (s *LocalSession) LobbyMemberIds(lobbyId int64) ([]int64, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	lobby, has := s.lobbies[lobbyId]
	if !has {
		return nil, &MissingLobbyError{LobbyId: lobbyId}
	}

	return append([]int64{}, lobby.members...), nil
}

func (s *LocalSession) OnMemberConnect(handler func(lobbyId int64, memberId int64)) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.memberConnectHandlers = append(s.memberConnectHandlers, handler)
}

// AddLobbyMember simulates another user joining a lobby. Member connect
// handlers fire during the next RunCallbacks.
func (s *LocalSession) AddLobbyMember(lobbyId int64, memberId int64) {
	s.enqueue(func() {
		s.mut.Lock()
		lobby, has := s.lobbies[lobbyId]
		if !has {
			lobby = &localLobby{}
			s.lobbies[lobbyId] = lobby
		}
		if !containsMember(lobby.members, memberId) {
			lobby.members = append(lobby.members, memberId)
		}
		handlers := append([]func(int64, int64){}, s.memberConnectHandlers...)
		s.mut.Unlock()

		for _, handler := range handlers {
			handler(lobbyId, memberId)
		}
	})
}

// SeedLobby registers a lobby hosted elsewhere with members already in it.
// No member connect handlers fire.
func (s *LocalSession) SeedLobby(lobbyId int64, secret string, memberIds ...int64) {
	s.mut.Lock()
	defer s.mut.Unlock()

	s.lobbies[lobbyId] = &localLobby{
		secret:  secret,
		members: append([]int64{}, memberIds...),
	}
}

// FailNextConnects makes the next n ConnectLobby calls fail.
func (s *LocalSession) FailNextConnects(n int) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.connectFailures = n
}

func (s *LocalSession) LocalVolume(memberId int64) (uint8, bool) {
	s.mut.Lock()
	defer s.mut.Unlock()

	volume, has := s.volumes[memberId]
	return volume, has
}

// LocalVolumeSets counts SetLocalVolume calls accepted for memberId.
func (s *LocalSession) LocalVolumeSets(memberId int64) int {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.volumeSets[memberId]
}

func (s *LocalSession) IsVoiceConnected(lobbyId int64) bool {
	s.mut.Lock()
	defer s.mut.Unlock()

	lobby, has := s.lobbies[lobbyId]
	return has && lobby.voice
}

func containsMember(members []int64, memberId int64) bool {
	for _, m := range members {
		if m == memberId {
			return true
		}
	}
	return false
}
