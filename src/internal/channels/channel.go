package channels

import (
	"context"
	"fmt"
	"strings"
)

// Channel is an outbound notification target for task reports.
type Channel interface {
	Name() string
	Status() map[string]any
	Connect(ctx context.Context) error
	Send(ctx context.Context, target string, msg string) error
}

// ParseTarget splits a report channel such as "irc:#pharma" into the
// channel name and its target.
func ParseTarget(s string) (channel, target string, err error) {
	channel, target, ok := strings.Cut(s, ":")
	if !ok || channel == "" || target == "" {
		return "", "", fmt.Errorf("invalid report channel %q, want <channel>:<target>", s)
	}
	return channel, target, nil
}
