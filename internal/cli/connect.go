package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/soyeahso/kapchan/internal/chat"
	"github.com/soyeahso/kapchan/internal/hooks"
	"github.com/spf13/cobra"
)

func newConnectCmd() *cobra.Command {
	var room string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join chat; lines read from stdin are sent to the active room",
		Long: "Connects to the server and stays connected, reconnecting with backoff when the " +
			"socket drops. Type /help for the commands understood besides plain messages.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := newClient(&cfg, log)
			if err != nil {
				return err
			}
			defer c.close()

			r := &repl{chat: c.chat, out: &syncWriter{w: cmd.OutOrStdout()}, want: room}
			r.subscribe(c.hooks)

			if err := c.open(ctx, true); err != nil {
				return err
			}

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				scanner.Buffer(make([]byte, 0, 4096), chat.MaxMessageLength*4)
				for scanner.Scan() {
					select {
					case lines <- scanner.Text():
					case <-ctx.Done():
						return
					}
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok || r.handle(line) {
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().StringVarP(&room, "room", "r", "", "room to make active once the room list arrives")
	return cmd
}

// syncWriter serializes writes from hook handlers and the input loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// repl renders chat events and interprets input lines.
type repl struct {
	chat *chat.Client
	out  io.Writer
	want string // room requested with --room, cleared once joined
}

func (r *repl) subscribe(h *hooks.Manager) {
	h.On(hooks.EventConnectionOpen, "repl", func(_ context.Context, p hooks.Payload) error {
		fmt.Fprintf(r.out, "* connected to %s\n", p.String("url"))
		return nil
	})
	h.On(hooks.EventConnectionClosed, "repl", func(_ context.Context, p hooks.Payload) error {
		fmt.Fprintf(r.out, "* disconnected, retrying in %s\n", p.String("retryIn"))
		return nil
	})
	h.On(hooks.EventSessionInvalidated, "repl", func(_ context.Context, _ hooks.Payload) error {
		fmt.Fprintln(r.out, "* the server rejected the session; continuing anonymously (run `kapchan login`)")
		return nil
	})
	h.On(hooks.EventRoomsChanged, "repl", func(_ context.Context, _ hooks.Payload) error {
		if r.want != "" && r.chat.Directory().SetActive(r.want) {
			r.want = ""
		}
		r.printRooms()
		return nil
	})
	h.On(hooks.EventChatMessage, "repl", func(_ context.Context, p hooks.Payload) error {
		fmt.Fprintf(r.out, "[%s] <%s> %s\n", p.String("room"), p.String("username"), p.String("message"))
		return nil
	})
	h.On(hooks.EventChatError, "repl", func(_ context.Context, p hooks.Payload) error {
		fmt.Fprintf(r.out, "! %s: %s\n", strings.ReplaceAll(p.String("kind"), "_", " "), p.String("message"))
		return nil
	})
}

const replHelp = `/join <room>        make room active
/msg <room> <text>  send to a room without switching
/rooms              list rooms
/users              list connected users
/history [room]     show buffered messages
/refresh            request rooms and users again
/quit               disconnect`

// handle runs one input line and reports whether the loop should stop.
func (r *repl) handle(line string) bool {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.report(r.chat.SendMessage(line))
		return false
	}

	name, rest, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	rest = strings.TrimSpace(rest)
	dir := r.chat.Directory()

	switch name {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "join":
		if rest == "" {
			fmt.Fprintln(r.out, "usage: /join <room>")
		} else if !dir.SetActive(rest) {
			fmt.Fprintf(r.out, "! no room named %q\n", rest)
		} else {
			fmt.Fprintf(r.out, "* now talking in %s\n", rest)
		}
	case "msg":
		room, text, ok := strings.Cut(rest, " ")
		if !ok {
			fmt.Fprintln(r.out, "usage: /msg <room> <text>")
			return false
		}
		r.report(r.chat.SendTo(room, text))
	case "rooms":
		r.printRooms()
	case "users":
		users := r.chat.Users()
		fmt.Fprintf(r.out, "* %d user(s): %s\n", len(users), strings.Join(users, ", "))
	case "history":
		room := rest
		if room == "" {
			room, _ = dir.Active()
		}
		for _, m := range dir.History(room) {
			fmt.Fprintf(r.out, "[%s] <%s> %s\n", m.Room, m.Username, m.Message)
		}
	case "refresh":
		r.chat.Resync()
	default:
		fmt.Fprintf(r.out, "! unknown command /%s (try /help)\n", name)
	}
	return false
}

func (r *repl) printRooms() {
	dir := r.chat.Directory()
	active, _ := dir.Active()
	var names []string
	for _, room := range dir.Rooms() {
		if room == active {
			room = "*" + room
		}
		names = append(names, room)
	}
	fmt.Fprintf(r.out, "* rooms: %s\n", strings.Join(names, " "))
}

func (r *repl) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrEmptyMessage):
	default:
		fmt.Fprintf(r.out, "! %v\n", err)
	}
}
