package gameserver

import (
	"github.com/sessamekesh/proximity-voice-bridge/pkg/spatial"
)

type GameServerMessageType uint8

const (
	GameServerMessageType_ServerConfig GameServerMessageType = iota
	GameServerMessageType_DiscordUserInfo
	GameServerMessageType_CreateLobbyRequest
	GameServerMessageType_CreateLobbyResult
	GameServerMessageType_ConnectLobby
	GameServerMessageType_LinkCode
	GameServerMessageType_PlayersPosition
	GameServerMessageType_End

	GameServerMessageType_NONE
)

// Wire values of the "state" field. createLobby is shared by the request
// (server to client, no payload) and the result (client to server).
const (
	State_ServerConfig    = "serverConfig"
	State_DiscordUserInfo = "discordUserInfo"
	State_CreateLobby     = "createLobby"
	State_ConnectLobby    = "connectLobby"
	State_LinkCode        = "linkCode"
	State_PlayersPosition = "sendPlayersPosition"
	State_End             = "end"
)

func (t GameServerMessageType) State() string {
	switch t {
	case GameServerMessageType_ServerConfig:
		return State_ServerConfig
	case GameServerMessageType_DiscordUserInfo:
		return State_DiscordUserInfo
	case GameServerMessageType_CreateLobbyRequest, GameServerMessageType_CreateLobbyResult:
		return State_CreateLobby
	case GameServerMessageType_ConnectLobby:
		return State_ConnectLobby
	case GameServerMessageType_LinkCode:
		return State_LinkCode
	case GameServerMessageType_PlayersPosition:
		return State_PlayersPosition
	case GameServerMessageType_End:
		return State_End
	}

	return ""
}

func (t GameServerMessageType) String() string {
	switch t {
	case GameServerMessageType_CreateLobbyRequest:
		return "createLobby(request)"
	case GameServerMessageType_CreateLobbyResult:
		return "createLobby(result)"
	case GameServerMessageType_NONE:
		return "NONE"
	}

	return t.State()
}

type ServerConfig struct {
	MaxHearingDistance float64
}

type DiscordUserInfo struct {
	Id            int64
	Username      string
	Discriminator string
}

type Lobby struct {
	Id     int64
	Secret string
}

type LinkCode struct {
	Code uint64
}

type PlayersPosition struct {
	Positions map[spatial.PlayerId]spatial.Position
}

// GameServerMessage carries exactly one payload, selected by MessageType.
// CreateLobbyRequest and End have no payload.
type GameServerMessage struct {
	MessageType GameServerMessageType

	ServerConfig      *ServerConfig
	DiscordUserInfo   *DiscordUserInfo
	CreateLobbyResult *Lobby
	ConnectLobby      *Lobby
	LinkCode          *LinkCode
	PlayersPosition   *PlayersPosition
}

func NewServerConfig(maxHearingDistance float64) *GameServerMessage {
	return &GameServerMessage{
		MessageType:  GameServerMessageType_ServerConfig,
		ServerConfig: &ServerConfig{MaxHearingDistance: maxHearingDistance},
	}
}

func NewDiscordUserInfo(id int64, username string, discriminator string) *GameServerMessage {
	return &GameServerMessage{
		MessageType: GameServerMessageType_DiscordUserInfo,
		DiscordUserInfo: &DiscordUserInfo{
			Id:            id,
			Username:      username,
			Discriminator: discriminator,
		},
	}
}

func NewCreateLobbyRequest() *GameServerMessage {
	return &GameServerMessage{MessageType: GameServerMessageType_CreateLobbyRequest}
}

func NewCreateLobbyResult(id int64, secret string) *GameServerMessage {
	return &GameServerMessage{
		MessageType:       GameServerMessageType_CreateLobbyResult,
		CreateLobbyResult: &Lobby{Id: id, Secret: secret},
	}
}

func NewConnectLobby(id int64, secret string) *GameServerMessage {
	return &GameServerMessage{
		MessageType:  GameServerMessageType_ConnectLobby,
		ConnectLobby: &Lobby{Id: id, Secret: secret},
	}
}

func NewLinkCode(code uint64) *GameServerMessage {
	return &GameServerMessage{
		MessageType: GameServerMessageType_LinkCode,
		LinkCode:    &LinkCode{Code: code},
	}
}

func NewPlayersPosition(positions map[spatial.PlayerId]spatial.Position) *GameServerMessage {
	return &GameServerMessage{
		MessageType:     GameServerMessageType_PlayersPosition,
		PlayersPosition: &PlayersPosition{Positions: positions},
	}
}

func NewEnd() *GameServerMessage {
	return &GameServerMessage{MessageType: GameServerMessageType_End}
}
