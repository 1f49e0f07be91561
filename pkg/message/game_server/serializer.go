package gameserver

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/sessamekesh/proximity-voice-bridge/pkg/errors"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/spatial"
)

var lineEnding = []byte("\r\n")

// GameServerMessageSerializer converts between GameServerMessage values and
// CRLF terminated JSON lines. It holds no state.
type GameServerMessageSerializer struct{}

type envelope struct {
	State *string `json:"state"`
}

type serverConfigWire struct {
	State              string   `json:"state"`
	MaxHearingDistance *float64 `json:"maxHearingDistance"`
}

type discordUserInfoWire struct {
	State         string  `json:"state"`
	Id            *int64  `json:"id"`
	Username      *string `json:"username"`
	Discriminator *string `json:"discriminator"`
}

type lobbyWire struct {
	State  string  `json:"state"`
	Id     *int64  `json:"id,omitempty"`
	Secret *string `json:"secret,omitempty"`
}

type linkCodeWire struct {
	State string  `json:"state"`
	Code  *uint64 `json:"code"`
}

type playersPositionWire struct {
	State     string                     `json:"state"`
	Positions map[string]json.RawMessage `json:"positions"`
}

type playersPositionOutWire struct {
	State     string                      `json:"state"`
	Positions map[string]spatial.Position `json:"positions"`
}

type stateOnlyWire struct {
	State string `json:"state"`
}

func trimLineEnding(line []byte) []byte {
	return bytes.TrimRight(line, "\r\n")
}

func decodeError(messageName string, err error) error {
	return &errors.DecodeError{MessageName: messageName, Err: err}
}

func missingField(messageName string, fieldName string) error {
	return decodeError(messageName, &errors.MissingFieldError{
		MessageName: messageName,
		FieldName:   fieldName,
	})
}

// Parse decodes a single line. A line with an unknown state decodes to
// (nil, nil) so newer servers can add message types without breaking clients.
func (s GameServerMessageSerializer) Parse(line []byte) (*GameServerMessage, error) {
	payload := trimLineEnding(line)

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &errors.ProtocolError{Line: string(payload), Err: err}
	}
	if env.State == nil {
		return nil, &errors.ProtocolError{
			Line: string(payload),
			Err: &errors.MissingFieldError{
				MessageName: "GameServerMessage",
				FieldName:   "state",
			},
		}
	}

	switch *env.State {
	case State_ServerConfig:
		return s.parseServerConfig(payload)
	case State_DiscordUserInfo:
		return s.parseDiscordUserInfo(payload)
	case State_CreateLobby:
		return s.parseCreateLobby(payload)
	case State_ConnectLobby:
		return s.parseConnectLobby(payload)
	case State_LinkCode:
		return s.parseLinkCode(payload)
	case State_PlayersPosition:
		return s.parsePlayersPosition(payload)
	case State_End:
		return NewEnd(), nil
	}

	return nil, nil
}

func (s GameServerMessageSerializer) parseServerConfig(payload []byte) (*GameServerMessage, error) {
	var w serverConfigWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, decodeError("ServerConfig", err)
	}
	if w.MaxHearingDistance == nil {
		return nil, missingField("ServerConfig", "maxHearingDistance")
	}

	return NewServerConfig(*w.MaxHearingDistance), nil
}

func (s GameServerMessageSerializer) parseDiscordUserInfo(payload []byte) (*GameServerMessage, error) {
	var w discordUserInfoWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, decodeError("DiscordUserInfo", err)
	}
	if w.Id == nil {
		return nil, missingField("DiscordUserInfo", "id")
	}
	if w.Username == nil {
		return nil, missingField("DiscordUserInfo", "username")
	}
	if w.Discriminator == nil {
		return nil, missingField("DiscordUserInfo", "discriminator")
	}

	return NewDiscordUserInfo(*w.Id, *w.Username, *w.Discriminator), nil
}

func (s GameServerMessageSerializer) parseCreateLobby(payload []byte) (*GameServerMessage, error) {
	var w lobbyWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, decodeError("CreateLobby", err)
	}

	switch {
	case w.Id == nil && w.Secret == nil:
		return NewCreateLobbyRequest(), nil
	case w.Id == nil:
		return nil, missingField("CreateLobbyResult", "id")
	case w.Secret == nil:
		return nil, missingField("CreateLobbyResult", "secret")
	}

	return NewCreateLobbyResult(*w.Id, *w.Secret), nil
}

func (s GameServerMessageSerializer) parseConnectLobby(payload []byte) (*GameServerMessage, error) {
	var w lobbyWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, decodeError("ConnectLobby", err)
	}
	if w.Id == nil {
		return nil, missingField("ConnectLobby", "id")
	}
	if w.Secret == nil {
		return nil, missingField("ConnectLobby", "secret")
	}

	return NewConnectLobby(*w.Id, *w.Secret), nil
}

func (s GameServerMessageSerializer) parseLinkCode(payload []byte) (*GameServerMessage, error) {
	var w linkCodeWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, decodeError("LinkCode", err)
	}
	if w.Code == nil {
		return nil, missingField("LinkCode", "code")
	}

	return NewLinkCode(*w.Code), nil
}

func (s GameServerMessageSerializer) parsePlayersPosition(payload []byte) (*GameServerMessage, error) {
	var w playersPositionWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, decodeError("PlayersPosition", err)
	}
	if w.Positions == nil {
		return nil, missingField("PlayersPosition", "positions")
	}

	positions := make(map[spatial.PlayerId]spatial.Position, len(w.Positions))
	for rawId, rawPosition := range w.Positions {
		playerId, err := strconv.ParseInt(rawId, 10, 64)
		if err != nil {
			return nil, decodeError("PlayersPosition", err)
		}

		position, err := spatial.DecodePosition(rawPosition)
		if err != nil {
			return nil, decodeError("PlayersPosition", err)
		}
		positions[playerId] = position
	}

	return NewPlayersPosition(positions), nil
}

// SerializeMessage encodes msg as one JSON object terminated by CRLF.
func (s GameServerMessageSerializer) SerializeMessage(msg *GameServerMessage) ([]byte, error) {
	var out any

	switch msg.MessageType {
	case GameServerMessageType_ServerConfig:
		if msg.ServerConfig == nil {
			return nil, &errors.MissingFieldError{MessageName: "GameServerMessage", FieldName: "ServerConfig"}
		}
		out = serverConfigWire{
			State:              State_ServerConfig,
			MaxHearingDistance: &msg.ServerConfig.MaxHearingDistance,
		}
	case GameServerMessageType_DiscordUserInfo:
		if msg.DiscordUserInfo == nil {
			return nil, &errors.MissingFieldError{MessageName: "GameServerMessage", FieldName: "DiscordUserInfo"}
		}
		out = discordUserInfoWire{
			State:         State_DiscordUserInfo,
			Id:            &msg.DiscordUserInfo.Id,
			Username:      &msg.DiscordUserInfo.Username,
			Discriminator: &msg.DiscordUserInfo.Discriminator,
		}
	case GameServerMessageType_CreateLobbyRequest:
		out = stateOnlyWire{State: State_CreateLobby}
	case GameServerMessageType_CreateLobbyResult:
		if msg.CreateLobbyResult == nil {
			return nil, &errors.MissingFieldError{MessageName: "GameServerMessage", FieldName: "CreateLobbyResult"}
		}
		out = lobbyWire{
			State:  State_CreateLobby,
			Id:     &msg.CreateLobbyResult.Id,
			Secret: &msg.CreateLobbyResult.Secret,
		}
	case GameServerMessageType_ConnectLobby:
		if msg.ConnectLobby == nil {
			return nil, &errors.MissingFieldError{MessageName: "GameServerMessage", FieldName: "ConnectLobby"}
		}
		out = lobbyWire{
			State:  State_ConnectLobby,
			Id:     &msg.ConnectLobby.Id,
			Secret: &msg.ConnectLobby.Secret,
		}
	case GameServerMessageType_LinkCode:
		if msg.LinkCode == nil {
			return nil, &errors.MissingFieldError{MessageName: "GameServerMessage", FieldName: "LinkCode"}
		}
		out = linkCodeWire{
			State: State_LinkCode,
			Code:  &msg.LinkCode.Code,
		}
	case GameServerMessageType_PlayersPosition:
		if msg.PlayersPosition == nil {
			return nil, &errors.MissingFieldError{MessageName: "GameServerMessage", FieldName: "PlayersPosition"}
		}
		positions := make(map[string]spatial.Position, len(msg.PlayersPosition.Positions))
		for playerId, position := range msg.PlayersPosition.Positions {
			positions[strconv.FormatInt(playerId, 10)] = position
		}
		out = playersPositionOutWire{
			State:     State_PlayersPosition,
			Positions: positions,
		}
	case GameServerMessageType_End:
		out = stateOnlyWire{State: State_End}
	default:
		return nil, &errors.UnexpectedMessage{
			State:   msg.MessageType.String(),
			Context: "GameServerMessageSerializer::SerializeMessage",
		}
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}

	return append(encoded, lineEnding...), nil
}
