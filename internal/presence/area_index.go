package presence

import (
	"maps"
	"slices"
)

// AreaIndex is the inverted index area -> member ids, plus the reverse lookup.
// Empty areas are dropped immediately so no storage outlives the last member.
type AreaIndex struct {
	members map[string]map[string]struct{}
	areaOf  map[string]string
}

// NewAreaIndex creates an empty index.
func NewAreaIndex() *AreaIndex {
	return &AreaIndex{
		members: make(map[string]map[string]struct{}),
		areaOf:  make(map[string]string),
	}
}

// Join places id in area, leaving any area it was in before.
func (a *AreaIndex) Join(id, area string) {
	if current, ok := a.areaOf[id]; ok {
		if current == area {
			return
		}
		a.remove(id, current)
	}
	set, ok := a.members[area]
	if !ok {
		set = make(map[string]struct{})
		a.members[area] = set
	}
	set[id] = struct{}{}
	a.areaOf[id] = area
}

// Leave removes id from its area and returns that area.
func (a *AreaIndex) Leave(id string) (string, bool) {
	area, ok := a.areaOf[id]
	if !ok {
		return "", false
	}
	a.remove(id, area)
	delete(a.areaOf, id)
	return area, true
}

// Move is an atomic leave+join. It returns the previous area, if any.
func (a *AreaIndex) Move(id, area string) (string, bool) {
	from, had := a.areaOf[id]
	a.Join(id, area)
	return from, had
}

// MembersOf returns the ids in area, sorted.
func (a *AreaIndex) MembersOf(area string) []string {
	return slices.Sorted(maps.Keys(a.members[area]))
}

// AreaOf returns the area of id.
func (a *AreaIndex) AreaOf(id string) (string, bool) {
	area, ok := a.areaOf[id]
	return area, ok
}

// Areas returns the non-empty areas, sorted.
func (a *AreaIndex) Areas() []string {
	return slices.Sorted(maps.Keys(a.members))
}

// Count returns the number of members in area.
func (a *AreaIndex) Count(area string) int {
	return len(a.members[area])
}

func (a *AreaIndex) remove(id, area string) {
	set := a.members[area]
	delete(set, id)
	if len(set) == 0 {
		delete(a.members, area)
	}
}
