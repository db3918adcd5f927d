package deploy

import (
	"fmt"

	"github.com/javelin-dev/javelin/pkg/api"
)

// Kind classifies a deployment failure.
type Kind string

const (
	KindPrerequisiteMissing   Kind = "prerequisite_missing"
	KindCredentialMissing     Kind = "credential_missing"
	KindAuthenticationFailed  Kind = "authentication_failed"
	KindFetchFailed           Kind = "fetch_failed"
	KindArtifactNotFound      Kind = "artifact_not_found"
	KindPortReclamationFailed Kind = "port_reclamation_failed"
	KindLaunchFailed          Kind = "launch_failed"
	KindMonitoringInterrupted Kind = "monitoring_interrupted"
)

// Failure is a classified, phase-attributed deployment error. Output carries
// captured process output when the failure has some.
type Failure struct {
	Kind   Kind
	Phase  api.Phase
	Reason string
	Output string
	Err    error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s (%s phase): %s", f.Kind, f.Phase, f.Reason)
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}
