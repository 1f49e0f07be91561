package internal

import (
	"fmt"
	"sync"
)

type MissingMemberIdError struct {
	Id int64
}

func (e *MissingMemberIdError) Error() string {
	return fmt.Sprintf("Missing lobby member with id=%d", e.Id)
}

type NoActiveLobbyError struct{}

func (e *NoActiveLobbyError) Error() string {
	return "No voice lobby is active"
}

type LobbyMemberMetadata struct {
	Volume uint8
}

type ActiveLobby struct {
	Id             int64
	Secret         string
	VoiceConnected bool
}

// MemberStore tracks the single active voice lobby and the last local
// volume applied to each member of it.
type MemberStore struct {
	mut_lobby sync.RWMutex
	lobby     *ActiveLobby

	mut_members sync.RWMutex
	members     map[int64]*LobbyMemberMetadata
}

func CreateMemberStore() *MemberStore {
	return &MemberStore{
		mut_lobby:   sync.RWMutex{},
		mut_members: sync.RWMutex{},
		members:     make(map[int64]*LobbyMemberMetadata),
	}
}

// SetActiveLobby replaces the active lobby and forgets members of the old one.
func (store *MemberStore) SetActiveLobby(id int64, secret string) {
	store.mut_lobby.Lock()
	defer store.mut_lobby.Unlock()

	if store.lobby != nil && store.lobby.Id == id {
		store.lobby.Secret = secret
		return
	}

	store.lobby = &ActiveLobby{Id: id, Secret: secret}

	store.mut_members.Lock()
	defer store.mut_members.Unlock()
	store.members = make(map[int64]*LobbyMemberMetadata)
}

func (store *MemberStore) GetActiveLobby() (ActiveLobby, error) {
	store.mut_lobby.RLock()
	defer store.mut_lobby.RUnlock()

	if store.lobby == nil {
		return ActiveLobby{}, &NoActiveLobbyError{}
	}
	return *store.lobby, nil
}

func (store *MemberStore) SetVoiceConnected(lobbyId int64) error {
	store.mut_lobby.Lock()
	defer store.mut_lobby.Unlock()

	if store.lobby == nil || store.lobby.Id != lobbyId {
		return &NoActiveLobbyError{}
	}
	store.lobby.VoiceConnected = true
	return nil
}

// SetVolume records the volume applied to a member, adding the member if it
// was not seen before. It reports whether the volume changed.
func (store *MemberStore) SetVolume(memberId int64, volume uint8) bool {
	store.mut_members.Lock()
	defer store.mut_members.Unlock()

	member, has := store.members[memberId]
	if !has {
		member = &LobbyMemberMetadata{}
		store.members[memberId] = member
	}

	changed := !has || member.Volume != volume
	member.Volume = volume
	return changed
}

func (store *MemberStore) GetVolume(memberId int64) (uint8, error) {
	store.mut_members.RLock()
	defer store.mut_members.RUnlock()

	member, has := store.members[memberId]
	if !has {
		return 0, &MissingMemberIdError{Id: memberId}
	}
	return member.Volume, nil
}
