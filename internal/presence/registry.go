package presence

import "ctchen222/presence-relay/internal/player"

// Registry maps player ids to their records. It is not safe for concurrent
// use on its own; State serialises access.
type Registry struct {
	players     map[string]*player.Record
	defaultArea string
}

// NewRegistry creates an empty registry. defaultArea replaces invalid area values.
func NewRegistry(defaultArea string) *Registry {
	if defaultArea == "" {
		defaultArea = player.DefaultArea
	}
	return &Registry{
		players:     make(map[string]*player.Record),
		defaultArea: defaultArea,
	}
}

// Create inserts a record with default fields. It is a no-op returning false
// when the id is already registered.
func (r *Registry) Create(id, area string) (*player.Record, bool) {
	if _, exists := r.players[id]; exists {
		return nil, false
	}
	rec := player.NewRecord(id, area)
	r.players[id] = rec
	return rec, true
}

// ApplyRuntimeUpdate merges the runtime allow-list into an existing record.
func (r *Registry) ApplyRuntimeUpdate(id string, u player.RuntimeUpdate) bool {
	rec, ok := r.players[id]
	if !ok {
		return false
	}
	rec.ApplyRuntime(u)
	return true
}

// ApplyIdentity merges the identity allow-list, applies a non-empty
// current_area and marks the record ready. It returns the area before and after.
func (r *Registry) ApplyIdentity(id string, p player.Identity) (from, to string, ok bool) {
	rec, ok := r.players[id]
	if !ok {
		return "", "", false
	}
	from = rec.CurrentArea
	rec.ApplyIdentity(p)
	if p.CurrentArea != nil && *p.CurrentArea != "" {
		rec.CurrentArea = player.AreaOrDefault(*p.CurrentArea, r.defaultArea)
	}
	if rec.CurrentArea == "" {
		// deferred handshake: a player never placed in an area lands in the default one
		rec.CurrentArea = r.defaultArea
	}
	return from, rec.CurrentArea, true
}

// SetEquipmentSlot sets or, when item is nil, deletes one equipment slot.
func (r *Registry) SetEquipmentSlot(id, slot string, item *string) bool {
	rec, ok := r.players[id]
	if !ok {
		return false
	}
	rec.SetEquipmentSlot(slot, item)
	return true
}

// ReplaceEquipment replaces the whole equipment mapping.
func (r *Registry) ReplaceEquipment(id string, equipment map[string]string) bool {
	rec, ok := r.players[id]
	if !ok {
		return false
	}
	rec.ReplaceEquipment(equipment)
	return true
}

// ChangeArea sets current_area. Values that are not a non-empty string fall
// back to the default area.
func (r *Registry) ChangeArea(id string, area any) (from, to string, ok bool) {
	rec, ok := r.players[id]
	if !ok {
		return "", "", false
	}
	from = rec.CurrentArea
	rec.CurrentArea = player.AreaOrDefault(area, r.defaultArea)
	return from, rec.CurrentArea, true
}

// Remove deletes a record, reporting whether it existed.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	return true
}

// View returns the public projection of a record.
func (r *Registry) View(id string) (player.View, bool) {
	rec, ok := r.players[id]
	if !ok {
		return player.View{}, false
	}
	return rec.View(), true
}

// Exists reports whether id is registered.
func (r *Registry) Exists(id string) bool {
	_, ok := r.players[id]
	return ok
}

// Len returns the number of registered players.
func (r *Registry) Len() int {
	return len(r.players)
}

func (r *Registry) get(id string) (*player.Record, bool) {
	rec, ok := r.players[id]
	return rec, ok
}
