package player

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Flag is a boolean that decodes leniently from JSON.
// true/false, numbers and "true"/"1"/"yes"/"on" strings are accepted; anything else is false.
type Flag bool

// UnmarshalJSON never fails; unrecognised input decodes to false.
func (f *Flag) UnmarshalJSON(b []byte) error {
	*f = Flag(parseFlag(b))
	return nil
}

func parseFlag(b []byte) bool {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true":
		return true
	case "false", "null", "":
		return false
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes", "on":
			return true
		}
		return false
	}

	n, err := strconv.ParseFloat(string(b), 64)
	return err == nil && n != 0
}

// RuntimeUpdate is the allow-listed payload of player-state-update.
// Keys outside this struct are discarded when decoding.
type RuntimeUpdate struct {
	PositionX      *float64 `json:"position_x,omitempty"`
	PositionY      *float64 `json:"position_y,omitempty"`
	Direction      *string  `json:"direction,omitempty" validate:"omitempty,max=16"`
	AnimationFrame *string  `json:"animation_frame,omitempty" validate:"omitempty,max=32"`
	IsMoving       *Flag    `json:"is_moving,omitempty"`
	MoveType       *string  `json:"move_type,omitempty" validate:"omitempty,max=16"`
	Username       *string  `json:"username,omitempty" validate:"omitempty,max=32"`
	IsInvisible    *Flag    `json:"is_invisible,omitempty"`
	KeepAwayMode   *Flag    `json:"keep_away_mode,omitempty"`
	SkinCode       *string  `json:"skin_code,omitempty" validate:"omitempty,max=32"`
	AdminLevel     *string  `json:"admin_level,omitempty" validate:"omitempty,max=16"`
}

// Empty reports whether the update carries no allowed field.
func (u RuntimeUpdate) Empty() bool {
	return u == RuntimeUpdate{}
}

// ApplyRuntime merges the present fields of u into the record.
func (r *Record) ApplyRuntime(u RuntimeUpdate) {
	if u.PositionX != nil {
		r.PositionX = *u.PositionX
	}
	if u.PositionY != nil {
		r.PositionY = *u.PositionY
	}
	if u.Direction != nil {
		r.Direction = *u.Direction
	}
	if u.AnimationFrame != nil {
		r.AnimationFrame = *u.AnimationFrame
	}
	if u.IsMoving != nil {
		r.IsMoving = bool(*u.IsMoving)
	}
	if u.MoveType != nil {
		r.MoveType = *u.MoveType
	}
	if u.Username != nil {
		r.Username = *u.Username
	}
	if u.IsInvisible != nil {
		r.IsInvisible = bool(*u.IsInvisible)
	}
	if u.KeepAwayMode != nil {
		r.KeepAwayMode = bool(*u.KeepAwayMode)
	}
	if u.SkinCode != nil {
		r.SkinCode = *u.SkinCode
	}
	if u.AdminLevel != nil {
		r.AdminLevel = *u.AdminLevel
	}
}

// Identity is the allow-listed payload of the identify handshake.
type Identity struct {
	Username     *string           `json:"username,omitempty" validate:"omitempty,max=32"`
	SkinCode     *string           `json:"skin_code,omitempty" validate:"omitempty,max=32"`
	AdminLevel   *string           `json:"admin_level,omitempty" validate:"omitempty,max=16"`
	Equipment    map[string]string `json:"equipment,omitempty" validate:"omitempty,max=32,dive,keys,min=1,max=32,endkeys,max=64"`
	CurrentArea  *string           `json:"current_area,omitempty" validate:"omitempty,max=64"`
	IsInvisible  *Flag             `json:"is_invisible,omitempty"`
	KeepAwayMode *Flag             `json:"keep_away_mode,omitempty"`
}

// ApplyIdentity merges the present profile fields and marks the record ready.
// CurrentArea is applied separately by the caller so the area index stays in sync.
func (r *Record) ApplyIdentity(p Identity) {
	if p.Username != nil {
		r.Username = *p.Username
	}
	if p.SkinCode != nil {
		r.SkinCode = *p.SkinCode
	}
	if p.AdminLevel != nil {
		r.AdminLevel = *p.AdminLevel
	}
	if p.Equipment != nil {
		r.ReplaceEquipment(p.Equipment)
	}
	if p.IsInvisible != nil {
		r.IsInvisible = bool(*p.IsInvisible)
	}
	if p.KeepAwayMode != nil {
		r.KeepAwayMode = bool(*p.KeepAwayMode)
	}
	r.Ready = true
}
