// Package voice drives the voice platform session: lobbies, lobby voice and
// per-member local volume.
package voice

import "errors"

var ErrNotAuthenticated = errors.New("voice session is not authenticated yet")

type User struct {
	Id            int64
	Username      string
	Discriminator string
}

type Lobby struct {
	Id     int64
	Secret string
}

type LobbyResult struct {
	Lobby Lobby
	Err   error
}

// Session is the capability surface of the voice platform SDK.
//
// Asynchronous operations return a channel that receives exactly one value.
// Implementations only resolve those channels and fire OnMemberConnect
// handlers from inside RunCallbacks, so all session work happens on the
// goroutine that calls RunCallbacks.
type Session interface {
	// CurrentUser returns ErrNotAuthenticated until the SDK has logged in.
	CurrentUser() (User, error)
	RunCallbacks() error

	CreateLobby() <-chan LobbyResult
	ConnectLobby(lobbyId int64, secret string) <-chan LobbyResult
	ConnectLobbyVoice(lobbyId int64) <-chan error

	// SetLocalVolume overrides how loud memberId is for the local user, 0-110.
	SetLocalVolume(memberId int64, volume uint8) error
	LobbyMemberIds(lobbyId int64) ([]int64, error)

	OnMemberConnect(handler func(lobbyId int64, memberId int64))
}
