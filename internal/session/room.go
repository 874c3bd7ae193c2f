package session

import (
	"sort"
	"sync"
)

// RoomIndex maps a document id to the users currently viewing it. Empty
// rooms are removed, never kept around with an empty set.
type RoomIndex struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{rooms: make(map[string]map[string]struct{})}
}

func (ri *RoomIndex) Join(documentID, userID string) int {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	members, ok := ri.rooms[documentID]
	if !ok {
		members = make(map[string]struct{})
		ri.rooms[documentID] = members
	}
	members[userID] = struct{}{}
	return len(members)
}

func (ri *RoomIndex) Leave(documentID, userID string) int {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	members, ok := ri.rooms[documentID]
	if !ok {
		return 0
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(ri.rooms, documentID)
		return 0
	}
	return len(members)
}

// Members returns a sorted snapshot; an unknown room yields an empty slice.
func (ri *RoomIndex) Members(documentID string) []string {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	members := ri.rooms[documentID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (ri *RoomIndex) Size(documentID string) int {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return len(ri.rooms[documentID])
}

func (ri *RoomIndex) Has(documentID string) bool {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	_, ok := ri.rooms[documentID]
	return ok
}

func (ri *RoomIndex) Rooms() int {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return len(ri.rooms)
}
