package channels

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/lrstanley/girc"

	"pharmaclaw/src/internal/config"
)

// CommandPrefix starts messages the IRC channel treats as commands.
const CommandPrefix = "!pharmaclaw"

type IRC struct {
	cfg     config.IRCConfig
	client  *girc.Client
	handler func(args []string) string
	mu      sync.RWMutex
}

func NewIRC(cfg config.IRCConfig) *IRC {
	client := girc.New(girc.Config{
		Server:     cfg.Server,
		Port:       cfg.Port,
		Nick:       cfg.Nick,
		User:       cfg.Nick,
		Name:       "PharmaClaw task reports",
		SSL:        cfg.UseTLS,
		ServerPass: cfg.Password,
	})

	i := &IRC{cfg: cfg, client: client}

	client.Handlers.Add(girc.CONNECTED, func(c *girc.Client, e girc.Event) {
		slog.Info("IRC connected", "server", cfg.Server)
		if cfg.Channel != "" {
			c.Cmd.Join(cfg.Channel)
		}
	})

	client.Handlers.Add(girc.PRIVMSG, func(c *girc.Client, e girc.Event) {
		target := e.Params[0]
		if !strings.HasPrefix(target, "#") {
			target = e.Source.Name
		}
		reply, ok := i.handle(e.Source.Name, e.Last())
		if ok {
			for _, line := range strings.Split(reply, "\n") {
				c.Cmd.Message(target, line)
			}
		}
	})

	return i
}

// handle answers "!pharmaclaw <command>" messages from allowlisted nicks.
func (i *IRC) handle(nick, msg string) (string, bool) {
	fields := strings.Fields(msg)
	if len(fields) == 0 || fields[0] != CommandPrefix {
		return "", false
	}
	if !slices.Contains(i.cfg.Allowlist, nick) {
		return "", false
	}
	i.mu.RLock()
	h := i.handler
	i.mu.RUnlock()
	if h == nil {
		return "", false
	}
	return h(fields[1:]), true
}

func (i *IRC) Name() string {
	return "irc"
}

func (i *IRC) Status() map[string]any {
	return map[string]any{
		"connected": i.client.IsConnected(),
		"nick":      i.client.GetNick(),
		"server":    i.cfg.Server,
		"channel":   i.cfg.Channel,
	}
}

// Connect dials in the background; girc reports failures through logs.
func (i *IRC) Connect(ctx context.Context) error {
	go func() {
		if err := i.client.Connect(); err != nil {
			slog.Error("IRC connect error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		i.client.Close()
	}()
	return nil
}

func (i *IRC) Send(_ context.Context, target string, msg string) error {
	if target == "" {
		target = i.cfg.Channel
	}
	for _, line := range strings.Split(msg, "\n") {
		i.client.Cmd.Message(target, line)
	}
	return nil
}

// SetCommandHandler installs the function answering chat commands.
func (i *IRC) SetCommandHandler(handler func(args []string) string) {
	i.mu.Lock()
	i.handler = handler
	i.mu.Unlock()
}
