package booking

import (
	"fmt"
	"sort"
	"strings"
)

// RoomCatalog is the immutable set of configured rooms.
type RoomCatalog struct {
	rooms map[RoomNumber]Room
}

// NewRoomCatalog validates rooms: positive unique numbers, non-empty names, positive rates.
func NewRoomCatalog(rooms []Room) (RoomCatalog, error) {
	if len(rooms) == 0 {
		return RoomCatalog{}, fmt.Errorf("%w: no rooms", ErrInvalidRoomCatalog)
	}
	indexed := make(map[RoomNumber]Room, len(rooms))
	for _, room := range rooms {
		if room.Number <= 0 {
			return RoomCatalog{}, fmt.Errorf("%w: room number %d", ErrInvalidRoomCatalog, room.Number)
		}
		if _, exists := indexed[room.Number]; exists {
			return RoomCatalog{}, fmt.Errorf("%w: duplicate room %d", ErrInvalidRoomCatalog, room.Number)
		}
		if strings.TrimSpace(room.Name) == "" {
			return RoomCatalog{}, fmt.Errorf("%w: room %d has no name", ErrInvalidRoomCatalog, room.Number)
		}
		if room.Rate <= 0 {
			return RoomCatalog{}, fmt.Errorf("%w: room %d rate must be positive", ErrInvalidRoomCatalog, room.Number)
		}
		room.Name = strings.TrimSpace(room.Name)
		indexed[room.Number] = room
	}
	return RoomCatalog{rooms: indexed}, nil
}

// Lookup returns the room with number.
func (catalog RoomCatalog) Lookup(number RoomNumber) (Room, error) {
	room, ok := catalog.rooms[number]
	if !ok {
		return Room{}, fmt.Errorf("%w: %d", ErrUnknownRoom, number)
	}
	return room, nil
}

// Rooms returns every room ordered by number.
func (catalog RoomCatalog) Rooms() []Room {
	rooms := make([]Room, 0, len(catalog.rooms))
	for _, room := range catalog.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(left, right int) bool {
		return rooms[left].Number < rooms[right].Number
	})
	return rooms
}
