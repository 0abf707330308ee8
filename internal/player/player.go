package player

import "maps"

// Documented defaults for a freshly created record and for the public view.
const (
	DefaultDirection      = "front"
	DefaultAnimationFrame = "idle"
	DefaultMoveType       = "walk"
	DefaultArea           = "city"
	DefaultAdminLevel     = "user"
	DefaultSkinCode       = "blue"
)

// Record is the authoritative state of one connected player.
// It is owned by the presence registry and never shared outside its lock.
type Record struct {
	ID             string
	PositionX      float64
	PositionY      float64
	Direction      string
	AnimationFrame string
	IsMoving       bool
	MoveType       string
	CurrentArea    string
	Username       string
	SkinCode       string
	Equipment      map[string]string
	AdminLevel     string
	IsInvisible    bool
	KeepAwayMode   bool
	// Ready gates visibility to other players. It flips once, on identify.
	Ready bool
}

// NewRecord creates a record with the documented defaults in the given area.
func NewRecord(id, area string) *Record {
	return &Record{
		ID:             id,
		Direction:      DefaultDirection,
		AnimationFrame: DefaultAnimationFrame,
		MoveType:       DefaultMoveType,
		CurrentArea:    area,
		SkinCode:       DefaultSkinCode,
		Equipment:      make(map[string]string),
		AdminLevel:     DefaultAdminLevel,
	}
}

// View is the sanitized projection of a Record that is safe to send to other clients.
type View struct {
	ID             string            `json:"id"`
	PositionX      float64           `json:"position_x"`
	PositionY      float64           `json:"position_y"`
	Direction      string            `json:"direction"`
	AnimationFrame string            `json:"animation_frame"`
	IsMoving       bool              `json:"is_moving"`
	MoveType       string            `json:"move_type"`
	CurrentArea    string            `json:"current_area"`
	Username       string            `json:"username"`
	SkinCode       string            `json:"skin_code"`
	Equipment      map[string]string `json:"equipment"`
	AdminLevel     string            `json:"admin_level"`
	IsInvisible    bool              `json:"is_invisible"`
	KeepAwayMode   bool              `json:"keep_away_mode"`
}

// View projects the record, filling absent optional fields with defaults.
// The equipment map is copied so the view can leave the registry lock.
func (r *Record) View() View {
	equipment := make(map[string]string, len(r.Equipment))
	maps.Copy(equipment, r.Equipment)

	return View{
		ID:             r.ID,
		PositionX:      r.PositionX,
		PositionY:      r.PositionY,
		Direction:      orDefault(r.Direction, DefaultDirection),
		AnimationFrame: orDefault(r.AnimationFrame, DefaultAnimationFrame),
		IsMoving:       r.IsMoving,
		MoveType:       orDefault(r.MoveType, DefaultMoveType),
		CurrentArea:    orDefault(r.CurrentArea, DefaultArea),
		Username:       r.Username,
		SkinCode:       orDefault(r.SkinCode, DefaultSkinCode),
		Equipment:      equipment,
		AdminLevel:     orDefault(r.AdminLevel, DefaultAdminLevel),
		IsInvisible:    r.IsInvisible,
		KeepAwayMode:   r.KeepAwayMode,
	}
}

// SetEquipmentSlot upserts one slot, or deletes it when item is nil.
func (r *Record) SetEquipmentSlot(slot string, item *string) {
	if r.Equipment == nil {
		r.Equipment = make(map[string]string)
	}
	if item == nil {
		delete(r.Equipment, slot)
		return
	}
	r.Equipment[slot] = *item
}

// ReplaceEquipment swaps in a copy of the given mapping.
func (r *Record) ReplaceEquipment(equipment map[string]string) {
	r.Equipment = make(map[string]string, len(equipment))
	maps.Copy(r.Equipment, equipment)
}

// AreaOrDefault returns v when it is a non-empty string and fallback otherwise.
func AreaOrDefault(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
