// Package proc launches and supervises the deployed application process.
package proc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	gproc "github.com/shirou/gopsutil/v4/process"

	"github.com/javelin-dev/javelin/pkg/api"
)

// StartSpec describes the process to launch. Port is exported to the child
// through SERVER_PORT.
type StartSpec struct {
	Name string
	Args []string
	Dir  string
	Port int
}

// Stats is a point-in-time resource sample of a running child.
type Stats struct {
	RSSBytes   uint64
	CPUPercent float64
}

// Handle supervises one launched process. Exits are observed by polling:
// State, Alive and Stop all refresh from the latest wait result.
type Handle interface {
	PID() int
	State() api.State
	Alive() bool
	// ExitCode returns the exit code once the process has exited.
	ExitCode() (int, bool)
	Output() (stdout, stderr string)
	Stats(ctx context.Context) (Stats, error)
	// Stop requests a graceful exit and escalates to a kill after grace.
	// Calling Stop on an exited process returns its terminal state.
	Stop(ctx context.Context, grace time.Duration) (api.State, error)
}

// Launcher starts processes. Swapped for a fake in tests.
type Launcher interface {
	Start(spec StartSpec) (Handle, error)
}

// ExecLauncher starts real OS processes.
type ExecLauncher struct{}

func (ExecLauncher) Start(spec StartSpec) (Handle, error) {
	c := &child{
		state: api.StateNone,
		done:  make(chan struct{}),
	}
	c.transition(api.StateLaunching)

	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), fmt.Sprintf("SERVER_PORT=%d", spec.Port))
	cmd.Stdout = &c.stdout
	cmd.Stderr = &c.stderr
	c.cmd = cmd

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	c.transition(api.StateRunning)

	log.Debug().
		Int("pid", cmd.Process.Pid).
		Str("command", spec.Name).
		Strs("args", spec.Args).
		Str("dir", spec.Dir).
		Msg("process started")

	go func() {
		err := cmd.Wait()
		c.mu.Lock()
		defer c.mu.Unlock()
		c.exited = true
		if cmd.ProcessState != nil {
			c.exitCode = cmd.ProcessState.ExitCode()
		} else if err != nil {
			c.exitCode = -1
		}
		close(c.done)
	}()

	return c, nil
}

type child struct {
	cmd    *exec.Cmd
	stdout syncBuffer
	stderr syncBuffer

	mu            sync.Mutex
	state         api.State
	stopRequested bool
	exited        bool
	exitCode      int
	done          chan struct{}
}

func (c *child) PID() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

func (c *child) State() api.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return c.state
}

func (c *child) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return !c.exited
}

func (c *child) ExitCode() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exited {
		return 0, false
	}
	return c.exitCode, true
}

func (c *child) Output() (string, string) {
	return c.stdout.String(), c.stderr.String()
}

func (c *child) Stats(ctx context.Context) (Stats, error) {
	p, err := gproc.NewProcessWithContext(ctx, int32(c.PID()))
	if err != nil {
		return Stats{}, fmt.Errorf("process %d: %w", c.PID(), err)
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("memory info: %w", err)
	}
	cpu, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("cpu percent: %w", err)
	}
	return Stats{RSSBytes: mem.RSS, CPUPercent: cpu}, nil
}

func (c *child) Stop(ctx context.Context, grace time.Duration) (api.State, error) {
	c.mu.Lock()
	c.refreshLocked()
	if c.exited {
		st := c.state
		c.mu.Unlock()
		return st, nil
	}
	c.stopRequested = true
	c.mu.Unlock()

	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Debug().Err(err).Int("pid", c.PID()).Msg("terminate signal")
	}

	select {
	case <-c.done:
		c.transition(api.StateStopped)
		return api.StateStopped, nil
	case <-time.After(grace):
	case <-ctx.Done():
	}

	log.Warn().Int("pid", c.PID()).Dur("grace", grace).Msg("escalating to kill")
	if err := c.cmd.Process.Kill(); err != nil {
		log.Debug().Err(err).Int("pid", c.PID()).Msg("kill signal")
	}
	<-c.done
	c.transition(api.StateKilled)
	return api.StateKilled, nil
}

// refreshLocked folds the latest wait result into the state machine. An exit
// nobody requested is a crash; the transition happens lazily, when state is
// next observed.
func (c *child) refreshLocked() {
	if c.exited && !c.stopRequested && !c.state.Terminal() {
		c.transitionLocked(api.StateCrashed)
	}
}

func (c *child) transition(to api.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(to)
}

func (c *child) transitionLocked(to api.State) {
	if !c.state.CanTransitionTo(to) {
		log.Debug().
			Str("from", string(c.state)).
			Str("to", string(to)).
			Msg("state transition rejected")
		return
	}
	log.Debug().
		Str("from", string(c.state)).
		Str("to", string(to)).
		Msg("state transition")
	c.state = to
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
