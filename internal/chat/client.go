// Package chat keeps per-room chat history and speaks the chat service
// protocol over the shared connection.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/soyeahso/kapchan/internal/hooks"
	"github.com/soyeahso/kapchan/internal/logging"
	"github.com/soyeahso/kapchan/internal/protocol"
	"github.com/soyeahso/kapchan/internal/service"
)

// Outbound chat methods.
const (
	MethodSendMessage protocol.MethodID = 1
	MethodListRooms   protocol.MethodID = 2
	MethodListUsers   protocol.MethodID = 3
)

// Inbound chat events, carried in the response method field.
const (
	EventUserJoined     protocol.MethodID = 1
	EventUserLeft       protocol.MethodID = 2
	EventNewMessage     protocol.MethodID = 3
	EventUserList       protocol.MethodID = 4
	EventRoomList       protocol.MethodID = 5
	EventTimedOut       protocol.MethodID = 6
	EventMessageTooLong protocol.MethodID = 7
)

// MaxMessageLength is the largest message body, in bytes, the server accepts.
const MaxMessageLength = 2000

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = fmt.Errorf("message exceeds %d bytes", MaxMessageLength)
	ErrNoActiveRoom   = errors.New("no active room")
	ErrUnknownRoom    = errors.New("unknown room")
)

// Sender transmits service requests. *connection.Manager implements it.
type Sender interface {
	Send(id protocol.ServiceID, req protocol.Request, cb service.Callback) string
}

type listBody struct {
	Data []string `json:"data"`
}

type errorBody struct {
	Message string `json:"message"`
}

type outgoing struct {
	Message string `json:"message"`
	Room    string `json:"room"`
}

// Client is the standing handler for the chat service. It routes inbound
// events into the room directory and keeps the user roster.
type Client struct {
	dir    *Directory
	sender Sender
	hooks  *hooks.Manager
	log    *logging.Logger

	mu    sync.RWMutex
	users []string
}

// NewClient creates a chat client. hooks may be nil.
func NewClient(dir *Directory, sender Sender, h *hooks.Manager, log *logging.Logger) *Client {
	return &Client{
		dir:    dir,
		sender: sender,
		hooks:  h,
		log:    log.Sub("chat"),
	}
}

// Register installs the client as the chat service handler.
func (c *Client) Register(reg *service.Registry) {
	reg.Register(protocol.ChatService, c)
}

// Directory returns the room directory the client writes to.
func (c *Client) Directory() *Directory { return c.dir }

// Users returns the current roster, sorted.
func (c *Client) Users() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.users)
}

// HandleResponse implements service.Handler.
func (c *Client) HandleResponse(resp protocol.Response, answer service.Callback) {
	ctx := context.Background()

	switch resp.Method {
	case EventRoomList:
		var body listBody
		if !c.decode(resp, &body) {
			return
		}
		c.dir.SetRooms(body.Data)
		active, _ := c.dir.Active()
		c.hooks.Emit(ctx, hooks.EventRoomsChanged, map[string]any{
			"rooms":  body.Data,
			"active": active,
		})
		answer(resp)

	case EventNewMessage:
		var msg Message
		if !c.decode(resp, &msg) {
			return
		}
		if !c.dir.Append(msg.Room, msg) {
			return
		}
		c.hooks.Emit(ctx, hooks.EventChatMessage, map[string]any{
			"room":     msg.Room,
			"username": msg.Username,
			"message":  msg.Message,
		})

	case EventUserList:
		var body listBody
		if !c.decode(resp, &body) {
			return
		}
		c.setUsers(body.Data)
		answer(resp)

	case EventUserJoined, EventUserLeft:
		var msg Message
		if !c.decode(resp, &msg) {
			return
		}
		if msg.Username == "" {
			c.log.Warn().Int("event", int(resp.Method)).Msg("membership event without username")
			return
		}
		c.updateUser(msg.Username, resp.Method == EventUserJoined)

	case EventTimedOut, EventMessageTooLong:
		var body errorBody
		if !c.decode(resp, &body) {
			return
		}
		kind := "timed_out"
		if resp.Method == EventMessageTooLong {
			kind = "message_too_long"
		}
		c.log.Warn().Str("kind", kind).Str("message", body.Message).Msg("chat error from server")
		c.hooks.Emit(ctx, hooks.EventChatError, map[string]any{
			"kind":    kind,
			"message": body.Message,
		})

	default:
		c.log.Warn().Int("event", int(resp.Method)).Msg("unknown chat event")
	}
}

func (c *Client) decode(resp protocol.Response, v any) bool {
	if err := json.Unmarshal([]byte(resp.Body), v); err != nil {
		c.log.Warn().Err(err).Int("event", int(resp.Method)).Msg("malformed chat body")
		return false
	}
	return true
}

func (c *Client) setUsers(names []string) {
	users := slices.Clone(names)
	slices.Sort(users)
	users = slices.Compact(users)

	c.mu.Lock()
	c.users = users
	c.mu.Unlock()
	c.emitUsers()
}

func (c *Client) updateUser(name string, joined bool) {
	c.mu.Lock()
	i, found := slices.BinarySearch(c.users, name)
	switch {
	case joined && !found:
		c.users = slices.Insert(c.users, i, name)
	case !joined && found:
		c.users = slices.Delete(c.users, i, i+1)
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.emitUsers()
}

func (c *Client) emitUsers() {
	c.hooks.Emit(context.Background(), hooks.EventUsersChanged, map[string]any{
		"users": c.Users(),
	})
}

// SendMessage posts text to the active room.
func (c *Client) SendMessage(text string) error {
	room, ok := c.dir.Active()
	if !ok {
		return ErrNoActiveRoom
	}
	return c.SendTo(room, text)
}

// SendTo posts text to a specific room. Surrounding whitespace is trimmed
// before the length check; oversized messages are rejected here and never
// reach the connection.
func (c *Client) SendTo(room, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if len(text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !c.dir.Has(room) {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, room)
	}

	body, err := json.Marshal(outgoing{Message: text, Room: room})
	if err != nil {
		return fmt.Errorf("encoding chat message: %w", err)
	}
	c.sender.Send(protocol.ChatService, protocol.Request{Method: MethodSendMessage, Body: string(body)}, nil)
	return nil
}

// RequestRooms asks the server for the room list. The reply arrives as a
// RoomList event; subscribe to rooms_changed or fill the chat callback slot
// with Registry.RegisterCallback to observe it.
func (c *Client) RequestRooms() {
	c.sender.Send(protocol.ChatService, protocol.Request{Method: MethodListRooms}, nil)
}

// RequestUsers asks the server for the connected users.
func (c *Client) RequestUsers() {
	c.sender.Send(protocol.ChatService, protocol.Request{Method: MethodListUsers}, nil)
}

// Resync refreshes rooms and users. It is meant to run on every
// (re)connect.
func (c *Client) Resync() {
	c.RequestRooms()
	c.RequestUsers()
}
