// Package spatial holds player positions and the proximity volume falloff.
package spatial

import (
	"encoding/json"
	"math"

	"github.com/sessamekesh/proximity-voice-bridge/pkg/errors"
)

// PlayerId is the voice platform user id of a player. On the wire it is the
// string key of the positions object.
type PlayerId = int64

// Position is one player's location for a single report. Reports replace
// positions wholesale; nothing is carried over between ticks.
type Position struct {
	World string  `json:"world"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// DefaultWorld is the overworld name of a vanilla server.
const DefaultWorld = "world"

// DefaultPosition is where a player is assumed to be when a report leaves
// them out: the origin of the overworld.
func DefaultPosition() Position {
	return Position{World: DefaultWorld}
}

type rawPosition struct {
	World *string  `json:"world"`
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Z     *float64 `json:"z"`
}

func DecodePosition(raw []byte) (Position, error) {
	var p rawPosition
	if err := json.Unmarshal(raw, &p); err != nil {
		return Position{}, &errors.DecodeError{MessageName: "Position", Err: err}
	}

	fields := []struct {
		name    string
		present bool
	}{
		{"world", p.World != nil},
		{"x", p.X != nil},
		{"y", p.Y != nil},
		{"z", p.Z != nil},
	}
	for _, f := range fields {
		if !f.present {
			return Position{}, &errors.DecodeError{
				MessageName: "Position",
				Err: &errors.MissingFieldError{
					MessageName: "Position",
					FieldName:   f.name,
				},
			}
		}
	}

	return Position{World: *p.World, X: *p.X, Y: *p.Y, Z: *p.Z}, nil
}

func (p *Position) UnmarshalJSON(raw []byte) error {
	decoded, err := DecodePosition(raw)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// Distance is the euclidean distance between two positions, ignoring world.
func (p Position) Distance(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	dz := p.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
