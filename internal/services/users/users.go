// Package users is the client for the user service: sessions, registration
// and membership applications.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/kapchan/internal/hooks"
	"github.com/soyeahso/kapchan/internal/logging"
	"github.com/soyeahso/kapchan/internal/protocol"
	"github.com/soyeahso/kapchan/internal/service"
)

// User service methods.
const (
	MethodLogin             protocol.MethodID = 1
	MethodLogout            protocol.MethodID = 2
	MethodRegister          protocol.MethodID = 3
	MethodFetchApplications protocol.MethodID = 4
	MethodReviewApplication protocol.MethodID = 5
)

var (
	ErrMissingIdentity = errors.New("username or email is required")
	ErrMissingPassword = errors.New("password is required")
	ErrEmptyToken      = errors.New("login reply carried no token")
)

// Sender transmits service requests.
type Sender interface {
	Send(id protocol.ServiceID, req protocol.Request, cb service.Callback) string
}

// Sessions is where the access token lives.
type Sessions interface {
	Replace(token string) error
	DiscardSessionArtifact()
}

// LoginInfo identifies the user by username or email.
type LoginInfo struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// Registration is a new account request.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// ApplicationQuery selects membership applications to fetch.
type ApplicationQuery struct {
	Offset   int  `json:"offset"`
	Limit    int  `json:"limit"`
	OnlyOpen bool `json:"open"`
}

// Application is a membership application awaiting review.
type Application struct {
	ID         uint32     `json:"id"`
	UserID     uint32     `json:"user_id"`
	Accepted   bool       `json:"accepted"`
	Background string     `json:"background"`
	Motivation string     `json:"motivation"`
	Other      string     `json:"other"`
	CreatedAt  Timestamp  `json:"created_at"`
	ClosedAt   *Timestamp `json:"closed_at"`
}

// Open reports whether the application has not been reviewed yet.
func (a Application) Open() bool { return a.ClosedAt == nil }

// Review is a reviewer's verdict on an application.
type Review struct {
	ApplicationID uint32 `json:"application_id"`
	Accept        bool   `json:"accept"`
}

// Timestamp decodes the server's date-times, which may omit the zone.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	time.DateTime,
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Client sends user service requests and handles their replies.
type Client struct {
	sender   Sender
	sessions Sessions
	hooks    *hooks.Manager
	log      *logging.Logger
}

// NewClient creates a user service client. hooks may be nil.
func NewClient(sender Sender, sessions Sessions, h *hooks.Manager, log *logging.Logger) *Client {
	return &Client{sender: sender, sessions: sessions, hooks: h, log: log.Sub("users")}
}

// Register installs the client as the user service handler.
func (c *Client) Register(reg *service.Registry) {
	reg.Register(protocol.UserService, c)
}

// HandleResponse implements service.Handler. Every reply is answerable; the
// request helpers branch on the code.
func (c *Client) HandleResponse(resp protocol.Response, answer service.Callback) {
	if !resp.Code.OK() {
		c.log.Debug().Int("method", int(resp.Method)).Stringer("code", resp.Code).Msg("user service refused request")
	}
	answer(resp)
}

func (c *Client) send(method protocol.MethodID, body any, cb service.Callback) error {
	var payload string
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %d request: %w", method, err)
		}
		payload = string(data)
	}
	c.sender.Send(protocol.UserService, protocol.Request{Method: method, Body: payload}, cb)
	return nil
}

// Login starts a session. On success the returned token replaces the stored
// one before done is called.
func (c *Client) Login(info LoginInfo, done func(token string, err error)) error {
	if info.Username == "" && info.Email == "" {
		return ErrMissingIdentity
	}
	if info.Password == "" {
		return ErrMissingPassword
	}
	done = orNoopToken(done)

	return c.send(MethodLogin, info, func(resp protocol.Response) {
		if err := service.Check(protocol.UserService, resp); err != nil {
			done("", err)
			return
		}
		token := extractToken(resp.Body)
		if token == "" {
			done("", ErrEmptyToken)
			return
		}
		if err := c.sessions.Replace(token); err != nil {
			done("", fmt.Errorf("storing session token: %w", err))
			return
		}
		c.log.Info().Msg("logged in")
		c.hooks.Emit(context.Background(), hooks.EventSessionChanged, map[string]any{"loggedIn": true})
		done(token, nil)
	})
}

// extractToken accepts either a bare token or {"access_token": "..."}.
func extractToken(body string) string {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "{") {
		var v struct {
			AccessToken string `json:"access_token"`
		}
		if json.Unmarshal([]byte(body), &v) == nil {
			return v.AccessToken
		}
		return ""
	}
	return body
}

// Logout ends the session. The local token is discarded immediately, whatever
// the server replies.
func (c *Client) Logout(done func(error)) error {
	c.sessions.DiscardSessionArtifact()
	c.hooks.Emit(context.Background(), hooks.EventSessionChanged, map[string]any{"loggedIn": false})
	done = orNoop(done)

	return c.send(MethodLogout, nil, func(resp protocol.Response) {
		done(service.Check(protocol.UserService, resp))
	})
}

// Signup submits a new account.
func (c *Client) Signup(reg Registration, done func(error)) error {
	if reg.Username == "" {
		return ErrMissingIdentity
	}
	if reg.Password == "" {
		return ErrMissingPassword
	}
	done = orNoop(done)

	return c.send(MethodRegister, reg, func(resp protocol.Response) {
		done(service.Check(protocol.UserService, resp))
	})
}

// FetchApplications lists membership applications.
func (c *Client) FetchApplications(q ApplicationQuery, done func([]Application, error)) error {
	if done == nil {
		done = func([]Application, error) {}
	}
	return c.send(MethodFetchApplications, q, func(resp protocol.Response) {
		if err := service.Check(protocol.UserService, resp); err != nil {
			done(nil, err)
			return
		}
		var apps []Application
		if err := json.Unmarshal([]byte(resp.Body), &apps); err != nil {
			done(nil, fmt.Errorf("decoding applications: %w", err))
			return
		}
		done(apps, nil)
	})
}

// ReviewApplication accepts or denies an application.
func (c *Client) ReviewApplication(r Review, done func(error)) error {
	done = orNoop(done)
	return c.send(MethodReviewApplication, r, func(resp protocol.Response) {
		done(service.Check(protocol.UserService, resp))
	})
}

func orNoop(fn func(error)) func(error) {
	if fn == nil {
		return func(error) {}
	}
	return fn
}

func orNoopToken(fn func(string, error)) func(string, error) {
	if fn == nil {
		return func(string, error) {}
	}
	return fn
}
