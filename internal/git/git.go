// Package git acquires deployment sources with shallow clones.
package git

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/javelin-dev/javelin/internal/tools"
)

// Cloner fetches a repository branch into a fresh workspace.
type Cloner struct {
	Runner  tools.Runner
	Timeout time.Duration
}

// CloneFresh removes any existing directory at dest and clones the given
// branch into it, depth 1. Interactive credential prompts are disabled so a
// private repository fails instead of hanging.
func (c *Cloner) CloneFresh(ctx context.Context, repoURL, branch, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		log.Info().Str("path", dest).Msg("removing existing workspace")
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("remove workspace: %w", err)
		}
	}

	start := time.Now()
	res, err := c.Runner.Run(ctx, tools.Command{
		Name:    "git",
		Args:    []string{"clone", "--depth", "1", "--branch", branch, repoURL, dest},
		Env:     []string{"GIT_TERMINAL_PROMPT=0"},
		Timeout: c.Timeout,
	})
	if err != nil {
		return fmt.Errorf("git clone: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git clone exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	log.Info().
		Str("repo", repoURL).
		Str("branch", branch).
		Str("dest", dest).
		Dur("took", time.Since(start)).
		Msg("clone complete")
	return nil
}
