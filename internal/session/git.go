package session

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultBranch is reported when the branch cannot be determined.
const DefaultBranch = "main"

// VCS reports version-control state for a working directory.
type VCS interface {
	Branch(ctx context.Context, dir string) string
	Commits(ctx context.Context, dir string, n int) []string
}

// Git shells out to the git binary. Failures fall back to DefaultBranch and
// no commits.
type Git struct {
	Timeout time.Duration // per command; zero means 5s
}

func (g Git) timeout() time.Duration {
	if g.Timeout <= 0 {
		return 5 * time.Second
	}
	return g.Timeout
}

// Branch returns the current branch of the repository at dir.
func (g Git) Branch(ctx context.Context, dir string) string {
	out, err := g.run(ctx, dir, "branch", "--show-current")
	if err != nil {
		slog.Debug("git branch failed", "component", "session", "dir", dir, "err", err)
		return DefaultBranch
	}
	branch := strings.TrimSpace(out)
	if branch == "" {
		// detached HEAD
		return DefaultBranch
	}
	return branch
}

// Commits returns up to n recent commits as "hash subject" lines.
func (g Git) Commits(ctx context.Context, dir string, n int) []string {
	if n <= 0 {
		return nil
	}
	out, err := g.run(ctx, dir, "log", "--oneline", fmt.Sprintf("-%d", n))
	if err != nil {
		slog.Debug("git log failed", "component", "session", "dir", dir, "err", err)
		return nil
	}
	var commits []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			commits = append(commits, line)
		}
	}
	return commits
}

func (g Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
