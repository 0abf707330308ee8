package presence

import (
	"ctchen222/presence-relay/internal/player"
	"errors"
	"sync"
)

var (
	ErrMissingPlayerID = errors.New("missing playerId")
	ErrMissingArea     = errors.New("missing areaId")
)

// Options configures a State.
type Options struct {
	// DefaultArea replaces invalid area values.
	DefaultArea string
	// DeferredHandshake admits players without an area; they are placed on identify or join-area.
	DeferredHandshake bool
}

// State owns the registry, the area index and the connection directory behind
// one lock. Every method is a single critical section and returns copies, so
// callers send on the returned handles after the lock is released.
type State struct {
	mu        sync.RWMutex
	registry  *Registry
	areas     *AreaIndex
	directory *Directory
	opts      Options
}

// NewState creates an empty State.
func NewState(opts Options) *State {
	if opts.DefaultArea == "" {
		opts.DefaultArea = player.DefaultArea
	}
	return &State{
		registry:  NewRegistry(opts.DefaultArea),
		areas:     NewAreaIndex(),
		directory: NewDirectory(),
		opts:      opts,
	}
}

// Admission is the outcome of a successful Admit.
type Admission struct {
	Area string
	// Snapshot holds the ready players of Area, excluding the newcomer.
	Snapshot []player.View
	// Replaced is set when an earlier connection for the same id was torn down.
	Replaced *Departure
}

// Departure describes a player removed from the state.
type Departure struct {
	PlayerID string
	Area     string
	WasReady bool
	Conn     player.Connection
	// Peers are the handles still in Area after the removal.
	Peers []player.Connection
}

// Change describes the effect of a mutation of one player.
type Change struct {
	View player.View
	// FromArea is the area before the mutation; equal to Area unless Moved.
	FromArea string
	Area     string
	Moved    bool
	Ready    bool
	// BecameReady is true only for the identify that flipped the flag.
	BecameReady bool
	Self        player.Connection
	// LeftPeers are the handles remaining in FromArea when Moved.
	LeftPeers []player.Connection
	// Peers are the other handles in Area.
	Peers []player.Connection
	// Snapshot holds the other ready players of Area, filled when Moved or BecameReady.
	Snapshot []player.View
}

// AreaSnapshot is the broadcast unit of one tick.
type AreaSnapshot struct {
	Area    string
	Players []player.View
	Handles []player.Connection
}

// Stats is the read-only summary exposed over HTTP.
type Stats struct {
	ConnectedPlayers int            `json:"connected_players"`
	PlayersByArea    map[string]int `json:"players_by_area"`
}

// Admit registers a new connection. An existing record for id is torn down
// first and reported in Admission.Replaced.
func (s *State) Admit(id, area string, conn player.Connection) (Admission, error) {
	if id == "" {
		return Admission{}, ErrMissingPlayerID
	}
	if area == "" && !s.opts.DeferredHandshake {
		return Admission{}, ErrMissingArea
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var adm Admission
	if s.registry.Exists(id) {
		dep := s.removeLocked(id)
		adm.Replaced = &dep
	}

	s.registry.Create(id, area)
	if area != "" {
		s.areas.Join(id, area)
	}
	s.directory.Bind(id, conn)

	adm.Area = area
	adm.Snapshot = s.readyViewsLocked(area, id)
	return adm, nil
}

// Leave tears down id when conn is still its bound handle. A second call, or a
// call from an orphaned handle, returns false and changes nothing.
func (s *State) Leave(id string, conn player.Connection) (Departure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.boundLocked(id, conn) || !s.registry.Exists(id) {
		return Departure{}, false
	}
	return s.removeLocked(id), true
}

// The mutators below take the sending handle and change nothing unless it is
// still bound to id when the lock is held.

// ApplyRuntime merges a player-state-update.
func (s *State) ApplyRuntime(id string, conn player.Connection, u player.RuntimeUpdate) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.boundLocked(id, conn) || !s.registry.ApplyRuntimeUpdate(id, u) {
		return Change{}, false
	}
	return s.changeLocked(id, "", false), true
}

// Identify merges the identity handshake and marks the player ready.
func (s *State) Identify(id string, conn player.Connection, p player.Identity) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registry.get(id)
	if !ok || !s.boundLocked(id, conn) {
		return Change{}, false
	}
	wasReady := rec.Ready

	from, to, _ := s.registry.ApplyIdentity(id, p)
	if from != to {
		s.areas.Move(id, to)
	}

	c := s.changeLocked(id, from, from != to)
	c.BecameReady = !wasReady
	if c.BecameReady && c.Snapshot == nil {
		c.Snapshot = s.readyViewsLocked(c.Area, id)
	}
	return c, true
}

// ChangeArea moves the player. Non-string or empty values select the default area.
func (s *State) ChangeArea(id string, conn player.Connection, area any) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.boundLocked(id, conn) {
		return Change{}, false
	}
	from, to, ok := s.registry.ChangeArea(id, area)
	if !ok {
		return Change{}, false
	}
	if from != to {
		s.areas.Move(id, to)
	}
	return s.changeLocked(id, from, from != to), true
}

// SetEquipmentSlot sets one slot, deleting it when item is nil.
func (s *State) SetEquipmentSlot(id string, conn player.Connection, slot string, item *string) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.boundLocked(id, conn) || !s.registry.SetEquipmentSlot(id, slot, item) {
		return Change{}, false
	}
	return s.changeLocked(id, "", false), true
}

// ReplaceEquipment replaces the whole equipment mapping.
func (s *State) ReplaceEquipment(id string, conn player.Connection, equipment map[string]string) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.boundLocked(id, conn) || !s.registry.ReplaceEquipment(id, equipment) {
		return Change{}, false
	}
	return s.changeLocked(id, "", false), true
}

// Peers returns the area of id and the other handles in it.
func (s *State) Peers(id string) (string, []player.Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	area, ok := s.areas.AreaOf(id)
	if !ok {
		return "", nil, false
	}
	return area, s.handlesLocked(area, id), true
}

// IsBound reports whether conn is the current handle of id.
func (s *State) IsBound(id string, conn player.Connection) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.boundLocked(id, conn)
}

// HandleOf returns the current handle of id.
func (s *State) HandleOf(id string) (player.Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.directory.HandleOf(id)
}

// View returns the public view of id.
func (s *State) View(id string) (player.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.registry.View(id)
}

// Exists reports whether id is registered.
func (s *State) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.registry.Exists(id)
}

// ReadyViews returns the ready players of area ordered by id.
func (s *State) ReadyViews(area string) []player.View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readyViewsLocked(area, "")
}

// AreaSnapshots returns one snapshot per area that has at least one ready member.
// Handles include every member so unready players still receive updates.
func (s *State) AreaSnapshots() []AreaSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshots []AreaSnapshot
	for _, area := range s.areas.Areas() {
		views := s.readyViewsLocked(area, "")
		if len(views) == 0 {
			continue
		}
		snapshots = append(snapshots, AreaSnapshot{
			Area:    area,
			Players: views,
			Handles: s.handlesLocked(area, ""),
		})
	}
	return snapshots
}

// Handles returns every bound handle keyed by player id.
func (s *State) Handles() map[string]player.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handles := make(map[string]player.Connection, len(s.directory.handles))
	for id, conn := range s.directory.handles {
		handles[id] = conn
	}
	return handles
}

// Stats returns the connected player count and the member count per area.
func (s *State) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byArea := make(map[string]int)
	for _, area := range s.areas.Areas() {
		byArea[area] = s.areas.Count(area)
	}
	return Stats{
		ConnectedPlayers: s.registry.Len(),
		PlayersByArea:    byArea,
	}
}

func (s *State) boundLocked(id string, conn player.Connection) bool {
	bound, ok := s.directory.HandleOf(id)
	return ok && bound == conn
}

func (s *State) removeLocked(id string) Departure {
	rec, _ := s.registry.get(id)
	dep := Departure{PlayerID: id, WasReady: rec != nil && rec.Ready}

	if area, ok := s.areas.Leave(id); ok {
		dep.Area = area
		dep.Peers = s.handlesLocked(area, id)
	}
	dep.Conn = s.directory.Unbind(id)
	s.registry.Remove(id)
	return dep
}

func (s *State) changeLocked(id, from string, moved bool) Change {
	rec, _ := s.registry.get(id)
	area, _ := s.areas.AreaOf(id)
	self, _ := s.directory.HandleOf(id)

	c := Change{
		View:     rec.View(),
		FromArea: area,
		Area:     area,
		Moved:    moved,
		Ready:    rec.Ready,
		Self:     self,
		Peers:    s.handlesLocked(area, id),
	}
	if moved {
		c.FromArea = from
		if from != "" {
			c.LeftPeers = s.handlesLocked(from, id)
		}
		c.Snapshot = s.readyViewsLocked(area, id)
	}
	return c
}

func (s *State) readyViewsLocked(area, exclude string) []player.View {
	if area == "" {
		return nil
	}
	members := s.areas.MembersOf(area)
	views := make([]player.View, 0, len(members))
	for _, id := range members {
		if id == exclude {
			continue
		}
		rec, ok := s.registry.get(id)
		if !ok || !rec.Ready {
			continue
		}
		views = append(views, rec.View())
	}
	return views
}

func (s *State) handlesLocked(area, exclude string) []player.Connection {
	if area == "" {
		return nil
	}
	members := s.areas.MembersOf(area)
	handles := make([]player.Connection, 0, len(members))
	for _, id := range members {
		if id == exclude {
			continue
		}
		if conn, ok := s.directory.HandleOf(id); ok {
			handles = append(handles, conn)
		}
	}
	return handles
}
