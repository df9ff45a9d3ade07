package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/kapchan/internal/chat"
	"github.com/soyeahso/kapchan/internal/config"
	"github.com/soyeahso/kapchan/internal/connection"
	"github.com/soyeahso/kapchan/internal/hooks"
	"github.com/soyeahso/kapchan/internal/logging"
	"github.com/soyeahso/kapchan/internal/service"
	"github.com/soyeahso/kapchan/internal/services/boards"
	"github.com/soyeahso/kapchan/internal/services/users"
	"github.com/soyeahso/kapchan/internal/session"
	"github.com/soyeahso/kapchan/internal/store"
	"github.com/spf13/cobra"
)

// errTimeout is returned when a one-shot command gets no reply in time.
var errTimeout = errors.New("timed out waiting for the server")

// client is everything a command needs to talk to the server.
type client struct {
	db       *store.DB // nil with the memory session store
	sessions session.Store
	chatLog  *store.ChatLog
	hooks    *hooks.Manager
	registry *service.Registry
	conn     *connection.Manager
	chat     *chat.Client
	users    *users.Client
	boards   *boards.Client
}

// openSessions returns the configured session store. The returned DB is nil
// for the memory store.
func openSessions(cfg *config.Config, log *logging.Logger) (session.Store, *store.DB, error) {
	var sessions session.Store
	var db *store.DB

	switch cfg.Session.Store {
	case "memory":
		sessions = session.NewMemoryStore("")
	default:
		if err := paths.EnsureDirs(); err != nil {
			return nil, nil, fmt.Errorf("creating data directories: %w", err)
		}
		var err error
		db, err = store.Open(paths.Database(), log)
		if err != nil {
			return nil, nil, err
		}
		sessions = session.NewSQLiteStore(db, log)
	}

	if cfg.Session.Token != "" {
		if _, ok := sessions.CurrentSessionArtifact(); !ok {
			if err := sessions.Replace(cfg.Session.Token); err != nil {
				if db != nil {
					db.Close()
				}
				return nil, nil, fmt.Errorf("seeding session token: %w", err)
			}
		}
	}
	return sessions, db, nil
}

// newClient wires the service clients to one connection manager. Nothing
// is dialed until open.
func newClient(cfg *config.Config, log *logging.Logger) (*client, error) {
	if issues := config.Validate(cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return nil, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}

	sessions, db, err := openSessions(cfg, log)
	if err != nil {
		return nil, err
	}

	dir, err := chat.NewDirectory(cfg.Chat.HistorySize, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	c := &client{
		db:       db,
		sessions: sessions,
		hooks:    hooks.NewManager(log),
		registry: service.NewRegistry(log),
	}
	c.conn = connection.New(connection.FromConfig(cfg), c.registry, log,
		connection.WithCredentials(sessions),
		connection.WithHooks(c.hooks),
	)

	c.chat = chat.NewClient(dir, c.conn, c.hooks, log)
	c.chat.Register(c.registry)
	c.users = users.NewClient(c.conn, sessions, c.hooks, log)
	c.users.Register(c.registry)
	c.boards = boards.NewClient(c.conn, log)
	c.boards.Register(c.registry)

	if db != nil {
		c.chatLog = store.NewChatLog(db)
		c.hooks.On(hooks.EventChatMessage, "chatlog", func(_ context.Context, p hooks.Payload) error {
			return c.chatLog.Append(p.String("room"), p.String("username"), p.String("message"))
		})
	}
	return c, nil
}

// open dials the server. With resync set the chat client refreshes rooms and
// users on every (re)connect.
func (c *client) open(ctx context.Context, resync bool) error {
	if resync {
		c.conn.OnReconnect(c.chat.Resync)
	}
	return c.conn.Open(ctx)
}

func (c *client) close() {
	c.conn.Close()
	if c.db != nil {
		c.db.Close()
	}
}

// await runs start and blocks until it calls done, ctx ends, or timeout
// passes.
func await(ctx context.Context, timeout time.Duration, start func(done func(error))) error {
	result := make(chan error, 1)
	start(func(err error) {
		select {
		case result <- err:
		default:
		}
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-result:
		return err
	case <-timer.C:
		return errTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withClient opens a connection for the life of fn.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := newClient(&cfg, log)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.open(ctx, false); err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Server.URL, err)
	}
	return fn(ctx, c)
}
