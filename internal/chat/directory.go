package chat

import (
	"sync"

	"github.com/soyeahso/kapchan/internal/logging"
)

// DefaultHistorySize is the number of messages kept per room.
const DefaultHistorySize = 50

// Message is one chat line.
type Message struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Room     string `json:"room"`
}

// Directory holds one history ring per chat room and tracks the active room.
type Directory struct {
	mu       sync.RWMutex
	capacity int
	rooms    map[string]*Ring[Message]
	order    []string
	active   string
	log      *logging.Logger
}

// NewDirectory creates an empty directory whose rooms keep capacity messages.
func NewDirectory(capacity int, log *logging.Logger) (*Directory, error) {
	if _, err := NewRing[Message](capacity); err != nil {
		return nil, err
	}
	return &Directory{
		capacity: capacity,
		rooms:    make(map[string]*Ring[Message]),
		log:      log.Sub("chat"),
	}, nil
}

// SetRooms replaces every room with a fresh empty one per name. The first
// name becomes active; an empty list leaves no active room.
func (d *Directory) SetRooms(names []string) {
	rooms := make(map[string]*Ring[Message], len(names))
	order := make([]string, 0, len(names))
	for _, name := range names {
		if _, dup := rooms[name]; dup {
			continue
		}
		rooms[name] = MustRing[Message](d.capacity)
		order = append(order, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms = rooms
	d.order = order
	d.active = ""
	if len(order) > 0 {
		d.active = order[0]
	}
	d.log.Debug().Strs("rooms", order).Str("active", d.active).Msg("room directory replaced")
}

// Append stores msg in room's history. It reports false, and stores
// nothing, when the room is unknown.
func (d *Directory) Append(room string, msg Message) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[room]
	if !ok {
		d.log.Warn().Str("room", room).Msg("message for unknown room dropped")
		return false
	}
	r.Push(msg)
	return true
}

// SetActive switches the active room. Unknown rooms are ignored.
func (d *Directory) SetActive(room string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rooms[room]; !ok {
		return false
	}
	d.active = room
	return true
}

// Active returns the active room, if any.
func (d *Directory) Active() (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active, d.active != ""
}

// History returns room's retained messages oldest first, or nil when the
// room is unknown.
func (d *Directory) History(room string) []Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[room]
	if !ok {
		return nil
	}
	return r.Replay()
}

// Rooms returns the room names in announcement order.
func (d *Directory) Rooms() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Has reports whether room is in the directory.
func (d *Directory) Has(room string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.rooms[room]
	return ok
}
