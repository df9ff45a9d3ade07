// Package boards is the client for the board service.
package boards

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/soyeahso/kapchan/internal/logging"
	"github.com/soyeahso/kapchan/internal/protocol"
	"github.com/soyeahso/kapchan/internal/service"
	"github.com/soyeahso/kapchan/internal/session"
)

// Board service methods.
const (
	MethodCreateBoard protocol.MethodID = 1
	MethodFetchBoards protocol.MethodID = 2
)

// ErrInvalidBoard is returned by CreateBoard for boards that fail local checks.
var ErrInvalidBoard = errors.New("invalid board")

var handlePattern = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// Sender transmits service requests.
type Sender interface {
	Send(id protocol.ServiceID, req protocol.Request, cb service.Callback) string
}

// Board is one imageboard.
type Board struct {
	ID                 uint32              `json:"id,omitempty"`
	Handle             string              `json:"handle"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	AccessLevel        session.AccessLevel `json:"access_level"`
	ActiveThreadsLimit uint32              `json:"active_threads_limit"`
	ThreadSizeLimit    uint32              `json:"thread_size_limit"`
	Captcha            bool                `json:"captcha"`
	NSFW               bool                `json:"nsfw"`
}

// Path returns the board's URL path, e.g. "/g/".
func (b Board) Path() string { return "/" + b.Handle + "/" }

// Validate checks the fields the server would reject outright.
func (b Board) Validate() error {
	if !handlePattern.MatchString(b.Handle) {
		return fmt.Errorf("%w: handle %q must be 1-8 lowercase letters or digits", ErrInvalidBoard, b.Handle)
	}
	if b.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidBoard)
	}
	return nil
}

// Client sends board service requests.
type Client struct {
	sender Sender
	log    *logging.Logger
}

// NewClient creates a board service client.
func NewClient(sender Sender, log *logging.Logger) *Client {
	return &Client{sender: sender, log: log.Sub("boards")}
}

// Register installs the client as the board service handler.
func (c *Client) Register(reg *service.Registry) {
	reg.Register(protocol.BoardService, c)
}

// HandleResponse implements service.Handler.
func (c *Client) HandleResponse(resp protocol.Response, answer service.Callback) {
	switch resp.Method {
	case MethodCreateBoard, MethodFetchBoards:
		answer(resp)
	default:
		c.log.Warn().Int("method", int(resp.Method)).Msg("unknown board method")
	}
}

// FetchBoards lists every board visible to the current session.
func (c *Client) FetchBoards(done func([]Board, error)) {
	c.sender.Send(protocol.BoardService, protocol.Request{Method: MethodFetchBoards}, func(resp protocol.Response) {
		if done == nil {
			return
		}
		if err := service.Check(protocol.BoardService, resp); err != nil {
			done(nil, err)
			return
		}
		var boards []Board
		if err := json.Unmarshal([]byte(resp.Body), &boards); err != nil {
			done(nil, fmt.Errorf("decoding boards: %w", err))
			return
		}
		done(boards, nil)
	})
}

// CreateBoard asks the server to create b.
func (c *Client) CreateBoard(b Board, done func(error)) error {
	if err := b.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding board: %w", err)
	}
	c.sender.Send(protocol.BoardService, protocol.Request{Method: MethodCreateBoard, Body: string(body)}, func(resp protocol.Response) {
		err := service.Check(protocol.BoardService, resp)
		if err == nil {
			c.log.Info().Str("board", b.Path()).Msg("board created")
		}
		if done != nil {
			done(err)
		}
	})
	return nil
}
