package cmd

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExecute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cmd        Command
		wantStdout string
		wantStderr string
		wantCode   int
		wantErr    bool
	}{
		{
			name:       "echo success",
			cmd:        Command{Name: "echo", Args: []string{"hello"}},
			wantStdout: "hello\n",
		},
		{
			name:     "exit fail",
			cmd:      Command{Name: "sh", Args: []string{"-c", "exit 3"}},
			wantCode: 3,
			wantErr:  true,
		},
		{
			name:       "stderr",
			cmd:        Command{Name: "sh", Args: []string{"-c", `echo "err" >&2; exit 0`}},
			wantStderr: "err\n",
		},
		{
			name:       "argv is not shell expanded",
			cmd:        Command{Name: "echo", Args: []string{"C(=O)O", "$HOME"}},
			wantStdout: "C(=O)O $HOME\n",
		},
		{
			name:       "stdin is forwarded",
			cmd:        Command{Name: "cat", Stdin: strings.NewReader("piped")},
			wantStdout: "piped",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := Execute(context.Background(), tt.cmd)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if res.Stdout != tt.wantStdout {
				t.Errorf("Execute() stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
			if res.Stderr != tt.wantStderr {
				t.Errorf("Execute() stderr = %q, want %q", res.Stderr, tt.wantStderr)
			}
			if res.ExitCode != tt.wantCode {
				t.Errorf("Execute() code = %d, want %d", res.ExitCode, tt.wantCode)
			}
		})
	}
}

func TestExecuteTimeout(t *testing.T) {
	t.Parallel()

	res, err := Execute(context.Background(), Command{Name: "sleep", Args: []string{"5"}, Timeout: 100 * time.Millisecond})
	if err == nil {
		t.Fatal("expected an error for a timed out command")
	}
	if !res.TimedOut {
		t.Errorf("expected TimedOut to be set")
	}
}

func TestExecuteTimeoutWithLingeringChild(t *testing.T) {
	t.Parallel()

	// sh is killed at the deadline but sleep keeps stdout open
	start := time.Now()
	res, err := Execute(context.Background(), Command{Name: "sh", Args: []string{"-c", "sleep 10; echo done"}, Timeout: 200 * time.Millisecond})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected an error for a timed out command")
	}
	if !res.TimedOut {
		t.Errorf("expected TimedOut to be set")
	}
	if elapsed > 5*time.Second {
		t.Errorf("Execute() returned after %s, want it bounded by the timeout", elapsed)
	}
}

func TestExecuteDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res, err := Execute(context.Background(), Command{Name: "pwd", Dir: dir})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Stdout, dir) {
		t.Errorf("expected pwd %q to contain %q", res.Stdout, dir)
	}
}

func TestShell(t *testing.T) {
	t.Parallel()

	res, err := Shell(context.Background(), "echo one && echo two", time.Second)
	if err != nil {
		t.Fatalf("Shell() error = %v", err)
	}
	if res.Stdout != "one\ntwo\n" {
		t.Errorf("Shell() stdout = %q", res.Stdout)
	}
}
