// Package port finds and evicts processes holding a TCP port.
package port

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	gnet "github.com/shirou/gopsutil/v4/net"
	gproc "github.com/shirou/gopsutil/v4/process"
)

// Conn is a listening or established socket with its owning process.
type Conn struct {
	LocalPort uint32
	PID       int32
	Status    string
}

// Inspector abstracts the process table for tests.
type Inspector interface {
	Connections(ctx context.Context) ([]Conn, error)
	Terminate(ctx context.Context, pid int32) error
	Running(ctx context.Context, pid int32) (bool, error)
	Name(ctx context.Context, pid int32) (string, error)
}

// SystemInspector reads the live process table.
type SystemInspector struct{}

func (SystemInspector) Connections(ctx context.Context) ([]Conn, error) {
	stats, err := gnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	conns := make([]Conn, 0, len(stats))
	for _, s := range stats {
		conns = append(conns, Conn{LocalPort: s.Laddr.Port, PID: s.Pid, Status: s.Status})
	}
	return conns, nil
}

func (SystemInspector) Terminate(ctx context.Context, pid int32) error {
	p, err := gproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("process %d: %w", pid, err)
	}
	return p.TerminateWithContext(ctx)
}

func (SystemInspector) Running(ctx context.Context, pid int32) (bool, error) {
	p, err := gproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		// Process table no longer knows the pid.
		return false, nil
	}
	return p.IsRunningWithContext(ctx)
}

func (SystemInspector) Name(ctx context.Context, pid int32) (string, error) {
	p, err := gproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	return p.NameWithContext(ctx)
}

// Reclaimer evicts port owners with a graceful terminate and a bounded wait.
type Reclaimer struct {
	Inspector Inspector
	// Wait bounds how long a terminated owner may take to exit.
	Wait time.Duration
	// Poll is the exit re-check interval.
	Poll time.Duration
}

// Owners returns the distinct PIDs holding port. Sockets without an owning
// pid are skipped.
func (r *Reclaimer) Owners(ctx context.Context, port int) ([]int32, error) {
	conns, err := r.Inspector.Connections(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[int32]bool)
	var pids []int32
	for _, c := range conns {
		if c.LocalPort != uint32(port) || c.PID <= 0 || seen[c.PID] {
			continue
		}
		seen[c.PID] = true
		pids = append(pids, c.PID)
	}
	return pids, nil
}

// Free terminates every owner of port and confirms each exit. Owners get
// SIGTERM only; escalation is reserved for processes this tool launched.
func (r *Reclaimer) Free(ctx context.Context, port int) error {
	pids, err := r.Owners(ctx, port)
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		log.Debug().Int("port", port).Msg("port already free")
		return nil
	}

	for _, pid := range pids {
		name, err := r.Inspector.Name(ctx, pid)
		if err != nil {
			name = "unknown"
		}
		log.Warn().
			Int("port", port).
			Int32("pid", pid).
			Str("process", name).
			Msg("terminating port owner")

		if err := r.Inspector.Terminate(ctx, pid); err != nil {
			return fmt.Errorf("terminate pid %d: %w", pid, err)
		}
		if err := r.confirmExit(ctx, pid); err != nil {
			return fmt.Errorf("pid %d still holds port %d: %w", pid, port, err)
		}
	}

	log.Info().Int("port", port).Int("evicted", len(pids)).Msg("port reclaimed")
	return nil
}

func (r *Reclaimer) confirmExit(ctx context.Context, pid int32) error {
	wait := r.Wait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	poll := r.Poll
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}

	deadline := time.After(wait)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("no exit within %s", wait)
		case <-ticker.C:
			running, err := r.Inspector.Running(ctx, pid)
			if err != nil {
				continue
			}
			if !running {
				return nil
			}
		}
	}
}
