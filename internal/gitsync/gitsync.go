package gitsync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/store"
	"stock-forecaster/internal/types"
)

// Runner executes git with args inside dir and returns its stdout.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

// ExecRunner runs the system git binary.
func ExecRunner(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Syncer commits and pushes the artifact tree of a working copy.
type Syncer struct {
	dir       string
	remoteURL string
	run       Runner
	now       func() time.Time
}

var _ interfaces.RepoSyncer = (*Syncer)(nil)

// New builds a Syncer. remoteURL may contain a {token} placeholder; when it
// is empty the existing origin is used unchanged.
func New(dir, remoteURL string, run Runner) *Syncer {
	if run == nil {
		run = ExecRunner
	}
	return &Syncer{dir: dir, remoteURL: remoteURL, run: run, now: time.Now}
}

// FromConfig expands the token into the remote URL.
func FromConfig(cfg *store.Config) *Syncer {
	remote := cfg.Sync.RemoteURL
	if remote != "" {
		remote = strings.ReplaceAll(remote, "{token}", os.Getenv(cfg.Sync.TokenEnv))
	}
	return New(cfg.Sync.RepoDir, remote, nil)
}

func (s *Syncer) Sync(ctx context.Context) (types.SyncResult, error) {
	if _, err := s.run(ctx, s.dir, "pull"); err != nil {
		return types.SyncResult{}, fmt.Errorf("%w: %v", types.ErrUpstream, err)
	}

	status, err := s.run(ctx, s.dir, "status", "--porcelain")
	if err != nil {
		return types.SyncResult{}, err
	}
	if strings.TrimSpace(status) == "" {
		logger.Info(ctx, "Repository sync skipped", "reason", "no changes to commit")
		return types.SyncResult{Pushed: false, Reason: "no changes to commit"}, nil
	}

	msg := fmt.Sprintf("Auto update: datasets and sentiment (%s)", s.now().Format("2006-01-02 15:04:05"))
	steps := [][]string{
		{"add", "."},
		{"commit", "-m", msg},
	}
	if s.remoteURL != "" {
		steps = append(steps, []string{"remote", "set-url", "origin", s.remoteURL})
	}
	steps = append(steps, []string{"push"})

	for _, args := range steps {
		if _, err := s.run(ctx, s.dir, args...); err != nil {
			if args[0] == "push" {
				return types.SyncResult{}, fmt.Errorf("%w: %v", types.ErrUpstream, redact(err, s.remoteURL))
			}
			return types.SyncResult{}, redact(err, s.remoteURL)
		}
	}

	changed := len(strings.Split(strings.TrimSpace(status), "\n"))
	logger.Info(ctx, "Repository synced", "changed_paths", changed)
	return types.SyncResult{Pushed: true, Reason: "Git commit and push completed"}, nil
}

// redact keeps credentials embedded in the remote URL out of error text.
func redact(err error, remote string) error {
	if remote == "" || !strings.Contains(err.Error(), remote) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), remote, "<remote>"))
}
