package channels

import (
	"testing"

	"pharmaclaw/src/internal/config"
)

func TestParseTarget(t *testing.T) {
	ch, target, err := ParseTarget("irc:#pharma")
	if err != nil {
		t.Fatal(err)
	}
	if ch != "irc" || target != "#pharma" {
		t.Errorf("got %q %q", ch, target)
	}
	for _, bad := range []string{"irc", "irc:", ":#x", ""} {
		if _, _, err := ParseTarget(bad); err == nil {
			t.Errorf("ParseTarget(%q) should fail", bad)
		}
	}
}

func TestIRCHandle(t *testing.T) {
	irc := NewIRC(config.IRCConfig{Server: "irc.example.org", Port: 6697, Nick: "pharmaclaw", Allowlist: []string{"alice"}})

	if _, ok := irc.handle("alice", "!pharmaclaw runs"); ok {
		t.Error("no handler installed, expected no reply")
	}

	var got []string
	irc.SetCommandHandler(func(args []string) string {
		got = args
		return "2 runs"
	})

	reply, ok := irc.handle("alice", "!pharmaclaw runs 5")
	if !ok || reply != "2 runs" {
		t.Errorf("unexpected reply %q %v", reply, ok)
	}
	if len(got) != 2 || got[0] != "runs" || got[1] != "5" {
		t.Errorf("unexpected args %v", got)
	}

	if _, ok := irc.handle("mallory", "!pharmaclaw runs"); ok {
		t.Error("nick outside the allowlist must be ignored")
	}
	if _, ok := irc.handle("alice", "hello"); ok {
		t.Error("plain chat must be ignored")
	}
	if irc.Name() != "irc" {
		t.Errorf("unexpected name %s", irc.Name())
	}
}
