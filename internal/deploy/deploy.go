// Package deploy runs the deployment pipeline end to end.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/javelin-dev/javelin/internal/config"
	"github.com/javelin-dev/javelin/internal/git"
	"github.com/javelin-dev/javelin/internal/health"
	"github.com/javelin-dev/javelin/internal/port"
	"github.com/javelin-dev/javelin/internal/proc"
	"github.com/javelin-dev/javelin/internal/ssh"
	"github.com/javelin-dev/javelin/internal/telemetry"
	"github.com/javelin-dev/javelin/internal/tools"
	"github.com/javelin-dev/javelin/pkg/api"
)

type sourceCloner interface {
	CloneFresh(ctx context.Context, repoURL, branch, dest string) error
}

type portReclaimer interface {
	Free(ctx context.Context, port int) error
}

type timings struct {
	toolProbe       time.Duration
	authProbe       time.Duration
	clone           time.Duration
	artifactProbe   time.Duration
	launchGrace     time.Duration
	monitorInterval time.Duration
	monitorTotal    time.Duration
	teardown        time.Duration
}

func timingsFrom(cfg *config.Config, monitorSeconds int) timings {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return timings{
		toolProbe:       sec(cfg.Timeouts.ToolProbeSeconds),
		authProbe:       sec(cfg.Timeouts.AuthProbeSeconds),
		clone:           sec(cfg.Timeouts.CloneSeconds),
		artifactProbe:   sec(cfg.Timeouts.ArtifactProbeSeconds),
		launchGrace:     sec(cfg.Timeouts.LaunchGraceSeconds),
		monitorInterval: sec(cfg.Timeouts.MonitorIntervalSeconds),
		monitorTotal:    sec(monitorSeconds),
		teardown:        sec(cfg.Timeouts.TeardownSeconds),
	}
}

// Deployer executes one deployment. Collaborators sit behind small
// interfaces so tests can substitute fakes.
type Deployer struct {
	cfg      *config.Config
	runner   tools.Runner
	cloner   sourceCloner
	ports    portReclaimer
	launcher proc.Launcher
	prober   health.Prober
	metrics  *telemetry.Collector
	session  *Session
	log      zerolog.Logger
	t        timings
}

// New builds a Deployer for spec. Zero spec fields fall back to configured
// defaults.
func New(cfg *config.Config, spec api.DeploymentSpec) *Deployer {
	if spec.Branch == "" {
		spec.Branch = cfg.Defaults.Branch
	}
	if spec.Port == 0 {
		spec.Port = cfg.Defaults.Port
	}
	if spec.MonitorSeconds == 0 {
		spec.MonitorSeconds = cfg.Defaults.MonitorSeconds
	}

	session := newSession(spec)
	t := timingsFrom(cfg, spec.MonitorSeconds)
	runner := tools.ExecRunner{}

	return &Deployer{
		cfg:    cfg,
		runner: runner,
		cloner: &git.Cloner{Runner: runner, Timeout: t.clone},
		ports: &port.Reclaimer{
			Inspector: port.SystemInspector{},
			Wait:      time.Duration(cfg.Timeouts.ReclaimSeconds) * time.Second,
		},
		launcher: proc.ExecLauncher{},
		prober: &health.HTTPProber{
			HTTPTimeout: time.Duration(cfg.Timeouts.HealthHTTPSeconds) * time.Second,
			TCPTimeout:  time.Duration(cfg.Timeouts.HealthTCPSeconds) * time.Second,
		},
		metrics: telemetry.NewCollector(true, 0),
		session: session,
		log: log.With().
			Str("session", session.ID).
			Str("repo", spec.RepoURL).
			Str("app", spec.Name).
			Logger(),
		t: t,
	}
}

// Run executes every phase in order and tears down the launched process on
// the way out, success or failure. The returned error is a *Failure for
// classified outcomes and a wrapped context error on cancellation.
func (d *Deployer) Run(ctx context.Context) error {
	d.log.Info().
		Str("branch", d.session.Spec.Branch).
		Int("port", d.session.Spec.Port).
		Msg("deployment starting")
	start := time.Now()

	defer d.metrics.Shutdown()
	defer d.Teardown(context.Background())

	phases := []struct {
		phase api.Phase
		run   func(context.Context) error
	}{
		{api.PhasePrerequisites, d.checkPrerequisites},
		{api.PhaseCredentials, d.checkCredentials},
		{api.PhaseFetch, d.fetchSource},
		{api.PhaseArtifact, d.verifyArtifact},
		{api.PhasePort, d.reclaimPort},
		{api.PhaseLaunch, d.launch},
		{api.PhaseHealth, d.probeHealth},
		{api.PhaseMonitor, d.monitor},
	}

	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("deployment canceled: %w", err)
		}

		phaseStart := time.Now()
		err := p.run(ctx)
		d.metrics.Timer("phase_duration", time.Since(phaseStart),
			map[string]string{"phase": string(p.phase)})
		if err != nil {
			d.metrics.Counter("phase_failures", 1,
				map[string]string{"phase": string(p.phase)})
			ev := d.log.Error().Err(err).Str("phase", string(p.phase))
			var f *Failure
			if errors.As(err, &f) && f.Output != "" {
				ev = ev.Str("output", f.Output)
			}
			ev.Msg("deployment failed")
			return err
		}
	}

	d.log.Info().Dur("took", time.Since(start)).Msg("deployment complete")
	return nil
}

// Checks runs the environment phases only: tool prerequisites and
// credentials. Used by the check subcommand.
func (d *Deployer) Checks(ctx context.Context) error {
	defer d.metrics.Shutdown()
	if err := d.checkPrerequisites(ctx); err != nil {
		return err
	}
	return d.checkCredentials(ctx)
}

func (d *Deployer) checkPrerequisites(ctx context.Context) error {
	probes := []struct {
		name string
		args []string
		// anyExit accepts every exit code; presence of the binary is the
		// whole check.
		anyExit bool
	}{
		{name: "git", args: []string{"--version"}},
		{name: "java", args: []string{"-version"}},
		{name: "ssh", args: []string{"-V"}, anyExit: true},
	}

	for _, p := range probes {
		res, err := d.runner.Run(ctx, tools.Command{
			Name:    p.name,
			Args:    p.args,
			Timeout: d.t.toolProbe,
		})
		if err != nil {
			return &Failure{
				Kind:   KindPrerequisiteMissing,
				Phase:  api.PhasePrerequisites,
				Reason: fmt.Sprintf("%s is not available", p.name),
				Err:    err,
			}
		}
		if !p.anyExit && res.ExitCode != 0 {
			return &Failure{
				Kind:   KindPrerequisiteMissing,
				Phase:  api.PhasePrerequisites,
				Reason: fmt.Sprintf("%s probe exited %d", p.name, res.ExitCode),
				Output: res.Combined(),
			}
		}
		d.log.Debug().
			Str("tool", p.name).
			Str("version", firstLine(res.Combined())).
			Msg("prerequisite present")
	}

	d.log.Info().Msg("all prerequisites available")
	return nil
}

func (d *Deployer) checkCredentials(ctx context.Context) error {
	info, err := ssh.InspectKey(d.cfg.SSH.KeyPath)
	if err != nil {
		if errors.Is(err, ssh.ErrKeyMissing) {
			return &Failure{
				Kind:  KindCredentialMissing,
				Phase: api.PhaseCredentials,
				Reason: fmt.Sprintf(
					"no private key at %s; generate one with ssh-keygen and register it with the git host",
					d.cfg.SSH.KeyPath),
				Err: err,
			}
		}
		return &Failure{
			Kind:   KindCredentialMissing,
			Phase:  api.PhaseCredentials,
			Reason: "private key unusable",
			Err:    err,
		}
	}
	if info.Encrypted {
		d.log.Info().Str("key", info.Path).Msg("private key is passphrase-protected")
	} else {
		d.log.Debug().
			Str("key", info.Path).
			Str("fingerprint", info.Fingerprint).
			Msg("private key loaded")
	}

	// Exit code is meaningless here: the probe host refuses shells even on
	// success. Only the banner counts.
	res, err := d.runner.Run(ctx, tools.Command{
		Name:    "ssh",
		Args:    []string{"-T", d.cfg.SSH.ProbeHost},
		Timeout: d.t.authProbe,
	})
	if err != nil {
		return &Failure{
			Kind:   KindAuthenticationFailed,
			Phase:  api.PhaseCredentials,
			Reason: "auth probe could not run",
			Err:    err,
		}
	}
	if !strings.Contains(res.Combined(), "successfully authenticated") {
		return &Failure{
			Kind:   KindAuthenticationFailed,
			Phase:  api.PhaseCredentials,
			Reason: fmt.Sprintf("%s did not accept the key", d.cfg.SSH.ProbeHost),
			Output: TailLines(res.Combined(), 20),
		}
	}

	d.log.Info().Str("host", d.cfg.SSH.ProbeHost).Msg("authentication confirmed")
	return nil
}

func (d *Deployer) fetchSource(ctx context.Context) error {
	err := d.cloner.CloneFresh(ctx, d.session.Spec.RepoURL, d.session.Spec.Branch, d.session.Workspace)
	if err != nil {
		return &Failure{
			Kind:   KindFetchFailed,
			Phase:  api.PhaseFetch,
			Reason: fmt.Sprintf("could not fetch %s", d.session.Spec.RepoURL),
			Err:    err,
		}
	}
	return nil
}

func (d *Deployer) verifyArtifact(ctx context.Context) error {
	path, fallback, err := FindArtifact(d.session.Workspace, d.cfg.Artifact.Path, d.cfg.Artifact.Ext)
	if err != nil {
		return &Failure{
			Kind:   KindArtifactNotFound,
			Phase:  api.PhaseArtifact,
			Reason: "workspace scan failed",
			Err:    err,
		}
	}
	if path == "" {
		return &Failure{
			Kind:  KindArtifactNotFound,
			Phase: api.PhaseArtifact,
			Reason: fmt.Sprintf("no %s under %s (expected %s)",
				d.cfg.Artifact.Ext, d.session.Workspace, d.cfg.Artifact.Path),
		}
	}
	if fallback {
		d.log.Warn().
			Str("artifact", path).
			Str("expected", d.cfg.Artifact.Path).
			Msg("conventional artifact missing, adopting fallback")
	} else {
		d.log.Info().Str("artifact", path).Msg("artifact located")
	}
	d.session.Artifact = path

	// Advisory probe. A jar without --help still deploys.
	res, err := d.runner.Run(ctx, tools.Command{
		Name:    "java",
		Args:    []string{"-jar", path, "--help"},
		Timeout: d.t.artifactProbe,
	})
	switch {
	case err != nil:
		d.log.Warn().Err(err).Msg("artifact probe could not run")
	case res.ExitCode != 0:
		d.log.Warn().Int("exit", res.ExitCode).Msg("artifact probe exited nonzero")
	default:
		d.log.Debug().Msg("artifact responds to --help")
	}
	return nil
}

func (d *Deployer) reclaimPort(ctx context.Context) error {
	if err := d.ports.Free(ctx, d.session.Spec.Port); err != nil {
		return &Failure{
			Kind:   KindPortReclamationFailed,
			Phase:  api.PhasePort,
			Reason: fmt.Sprintf("port %d could not be reclaimed", d.session.Spec.Port),
			Err:    err,
		}
	}
	return nil
}

func (d *Deployer) launch(ctx context.Context) error {
	artifact, err := filepath.Abs(d.session.Artifact)
	if err != nil {
		artifact = d.session.Artifact
	}

	h, err := d.launcher.Start(proc.StartSpec{
		Name: "java",
		Args: []string{"-jar", artifact},
		Dir:  d.session.Workspace,
		Port: d.session.Spec.Port,
	})
	if err != nil {
		return &Failure{
			Kind:   KindLaunchFailed,
			Phase:  api.PhaseLaunch,
			Reason: "could not start process",
			Err:    err,
		}
	}
	d.session.Child = h
	d.log.Info().Int("pid", h.PID()).Str("artifact", artifact).Msg("process launched")

	select {
	case <-ctx.Done():
		return fmt.Errorf("deployment canceled: %w", ctx.Err())
	case <-time.After(d.t.launchGrace):
	}

	if !h.Alive() {
		code, _ := h.ExitCode()
		stdout, stderr := h.Output()
		return &Failure{
			Kind:   KindLaunchFailed,
			Phase:  api.PhaseLaunch,
			Reason: fmt.Sprintf("process exited with code %d during startup", code),
			Output: combineOutput(stdout, stderr),
		}
	}

	d.log.Info().Int("pid", h.PID()).Msg("process running")
	return nil
}

// probeHealth never fails the deployment: an unreachable or unhealthy
// endpoint right after launch is advisory.
func (d *Deployer) probeHealth(ctx context.Context) error {
	res := d.prober.Probe(ctx, d.session.Spec.Port, d.cfg.Health.Path)
	d.metrics.Counter("health_probes", 1, map[string]string{
		"mode":    res.Mode,
		"healthy": strconv.FormatBool(res.Healthy),
	})

	if res.Healthy {
		d.log.Info().Str("mode", res.Mode).Str("detail", res.Detail).Msg("health check passed")
	} else {
		d.log.Warn().
			Str("mode", res.Mode).
			Str("detail", res.Detail).
			Msg("health check failed; deployment continues")
	}
	return nil
}

func (d *Deployer) monitor(ctx context.Context) error {
	h := d.session.Child
	if h == nil {
		return nil
	}

	d.log.Info().Dur("window", d.t.monitorTotal).Msg("monitoring started")
	deadline := time.After(d.t.monitorTotal)
	ticker := time.NewTicker(d.t.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("deployment canceled: %w", ctx.Err())
		case <-deadline:
			d.log.Info().Msg("monitoring window elapsed, process stable")
			return nil
		case <-ticker.C:
			if !h.Alive() {
				code, _ := h.ExitCode()
				stdout, stderr := h.Output()
				return &Failure{
					Kind:   KindMonitoringInterrupted,
					Phase:  api.PhaseMonitor,
					Reason: fmt.Sprintf("process exited with code %d during monitoring", code),
					Output: combineOutput(stdout, stderr),
				}
			}

			ev := d.log.Info().Int("pid", h.PID())
			if stats, err := h.Stats(ctx); err == nil {
				ev = ev.Uint64("rss_bytes", stats.RSSBytes).Float64("cpu_percent", stats.CPUPercent)
				d.metrics.Gauge("child_rss_bytes", float64(stats.RSSBytes), nil)
				d.metrics.Gauge("child_cpu_percent", stats.CPUPercent, nil)
			} else {
				d.log.Debug().Err(err).Msg("resource sample unavailable")
			}
			ev.Msg("heartbeat")
		}
	}
}

// Teardown stops the launched process if one is still attached. It runs at
// most once per session and is safe to call at any point.
func (d *Deployer) Teardown(ctx context.Context) {
	if d.session.torndown {
		return
	}
	d.session.torndown = true

	h := d.session.Child
	if h == nil {
		d.log.Debug().Msg("teardown: nothing launched")
		return
	}
	d.session.Child = nil

	st, err := h.Stop(ctx, d.t.teardown)
	if err != nil {
		d.log.Warn().Err(err).Msg("teardown stop failed")
		return
	}
	switch st {
	case api.StateStopped:
		d.log.Info().Msg("process stopped gracefully")
	case api.StateKilled:
		d.log.Warn().Msg("process would not stop, killed")
	default:
		d.log.Debug().Str("state", string(st)).Msg("process already exited")
	}
	d.metrics.Counter("teardowns", 1, map[string]string{"state": string(st)})
}
