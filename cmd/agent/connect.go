package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Rrens/agent-handoff/internal/agent"
	"github.com/Rrens/agent-handoff/internal/channel"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/protocol"
)

const helpText = `commands:
  list                 all sessions
  waiting              tickets nobody has claimed
  mine                 tickets claimed by you
  claim <ticket>       claim a ticket and open its chat
  say <text>           send text on the active chat
  release              hand the active ticket back to the bot
  end                  close the active ticket
  read <ticket>        show a transcript and mark it read
  status <status>      online, away, busy or offline
  agents               known agent statuses
  quit                 log out and exit`

func newConnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Log in and open an interactive agent console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, result, err := a.login(cmd.Context())
			if err != nil {
				return err
			}

			c := &console{out: cmd.OutOrStdout(), shown: make(map[protocol.TicketID]int)}
			w := agent.New(agent.Config{
				BaseURL:   a.cfg.Agent.WebSocketURL(),
				Identity:  agent.Identity{ID: result.Agent.ID, Name: result.Agent.Name},
				Dialer:    channel.WebSocketDialer{Header: channel.BearerHeader(result.AccessToken)},
				Backend:   client,
				Reconnect: a.reconnectPolicy(),
			},
				agent.WithOnChange(c.printIncoming),
				agent.WithOnAlert(func(msg string) { c.printf("! %s\n", msg) }),
				agent.WithOnRaw(func(text string) { c.printf("~ %s\n", text) }),
			)
			c.w = w
			defer w.Logout()

			if err := w.Connect(cmd.Context()); err != nil {
				return fmt.Errorf("connect notifier: %w", err)
			}
			if err := w.SetStatus(cmd.Context(), domain.AgentOnline); err != nil {
				c.printf("! %v\n", err)
			}
			c.printf("connected as %s, %d waiting. type help for commands\n", result.Agent.Name, len(w.Waiting()))

			return c.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

// console is the line-oriented front end over a workspace
type console struct {
	w   *agent.Workspace
	out io.Writer

	mu    sync.Mutex
	shown map[protocol.TicketID]int
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		name, arg := parseCommand(scanner.Text())
		if name == "" {
			continue
		}
		quit, err := c.exec(ctx, name, arg)
		if err != nil {
			c.printf("! %v\n", err)
		}
		if quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	c.printf("bye\n")
	return nil
}

func (c *console) exec(ctx context.Context, name, arg string) (bool, error) {
	switch name {
	case "help", "?":
		c.printf("%s\n", helpText)
	case "list":
		c.printSessions(c.w.Sessions())
	case "waiting":
		c.printSessions(c.w.Waiting())
	case "mine":
		c.printSessions(c.w.Mine())
	case "claim":
		if arg == "" {
			return false, errors.New("usage: claim <ticket>")
		}
		id := protocol.TicketID(arg)
		if err := c.w.Claim(ctx, id); err != nil {
			return false, err
		}
		c.printf("claimed %s\n", id)
		c.printTranscript(id)
	case "say":
		if arg == "" {
			return false, errors.New("usage: say <text>")
		}
		return false, c.w.Send(ctx, arg)
	case "release":
		return false, c.w.Release(ctx)
	case "end":
		return false, c.w.End(ctx)
	case "read":
		if arg == "" {
			return false, errors.New("usage: read <ticket>")
		}
		id := protocol.TicketID(arg)
		c.printTranscript(id)
		c.w.MarkRead(id)
	case "status":
		if arg == "" {
			c.printf("status: %s\n", c.w.Status())
			return false, nil
		}
		return false, c.w.SetStatus(ctx, domain.AgentStatus(arg))
	case "agents":
		online := c.w.OnlineAgents()
		ids := make([]string, 0, len(online))
		for id := range online {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			c.printf("%s  %s\n", id, online[id])
		}
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, type help", name)
	}
	return false, nil
}

func (c *console) printSessions(sessions []domain.Session) {
	if len(sessions) == 0 {
		c.printf("(none)\n")
		return
	}
	active := c.w.ActiveChat()
	for _, s := range sessions {
		c.printf("%s\n", formatSession(s, active == protocol.TicketID(s.ID)))
	}
}

func (c *console) printTranscript(id protocol.TicketID) {
	s, ok := c.w.Session(id)
	if !ok {
		c.printf("! unknown ticket %s\n", id)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range s.Messages {
		fmt.Fprintln(c.out, formatMessage(m))
	}
	c.shown[id] = len(s.Messages)
}

// printIncoming prints active chat messages that arrived since the last print
func (c *console) printIncoming() {
	if c.w == nil {
		return
	}
	id := c.w.ActiveChat()
	if id == "" {
		return
	}
	s, ok := c.w.Session(id)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	from := c.shown[id]
	if from > len(s.Messages) {
		from = 0
	}
	self := c.w.Self().ID
	for _, m := range s.Messages[from:] {
		if m.Sender == domain.SenderAgent && m.AgentID == self {
			continue
		}
		fmt.Fprintln(c.out, formatMessage(m))
	}
	c.shown[id] = len(s.Messages)
}

// parseCommand splits a console line into a lowercase verb and the rest
func parseCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	name, arg, _ := strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

func formatSession(s domain.Session, active bool) string {
	marker := " "
	if active {
		marker = "*"
	}
	owner := ""
	switch {
	case s.ClaimedByMe:
		owner = " (you)"
	case s.ClaimedBy != "":
		owner = " (" + s.ClaimedBy + ")"
	}
	unread := ""
	if s.UnreadCount > 0 {
		unread = fmt.Sprintf(" [%d unread]", s.UnreadCount)
	}
	return fmt.Sprintf("%s %s  %-8s %s%s%s", marker, s.ID, s.Status, s.User.Name, owner, unread)
}

func formatMessage(m domain.Message) string {
	return fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Format("15:04"), m.Sender, m.Text)
}
