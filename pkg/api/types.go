package api

// v0 contains public types for embedding javelin as a library.

// DeploymentSpec describes one deployment request.
type DeploymentSpec struct {
	RepoURL string `json:"repo_url" yaml:"repo_url"`
	// Name is the destination directory for the fetched source, created
	// under the invoking directory.
	Name           string `json:"name" yaml:"name"`
	Branch         string `json:"branch" yaml:"branch"`
	Port           int    `json:"port" yaml:"port"`
	MonitorSeconds int    `json:"monitor_seconds" yaml:"monitor_seconds"`
}

// State is the lifecycle state of the launched application process.
type State string

const (
	StateNone      State = "none"
	StateLaunching State = "launching"
	StateRunning   State = "running"
	// StateStopped means the process exited after a graceful termination request.
	StateStopped State = "stopped"
	// StateKilled means the process had to be forcibly killed.
	StateKilled State = "killed"
	// StateCrashed means the process exited on its own.
	StateCrashed State = "crashed"
)

// ValidTransitions lists the allowed state changes. Exits from StateRunning
// are detected by polling, never by event notification.
var ValidTransitions = map[State][]State{
	StateNone:      {StateLaunching},
	StateLaunching: {StateRunning, StateStopped, StateKilled, StateCrashed},
	StateRunning:   {StateStopped, StateKilled, StateCrashed},
	StateStopped:   {},
	StateKilled:    {},
	StateCrashed:   {},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return len(ValidTransitions[s]) == 0
}

// Phase identifies one step of the deployment lifecycle.
type Phase string

const (
	PhasePrerequisites Phase = "prerequisites"
	PhaseCredentials   Phase = "credentials"
	PhaseFetch         Phase = "fetch"
	PhaseArtifact      Phase = "artifact"
	PhasePort          Phase = "port"
	PhaseLaunch        Phase = "launch"
	PhaseHealth        Phase = "health"
	PhaseMonitor       Phase = "monitor"
	PhaseTeardown      Phase = "teardown"
)
