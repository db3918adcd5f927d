package deploy

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/javelin-dev/javelin/internal/proc"
	"github.com/javelin-dev/javelin/pkg/api"
)

// Session is the mutable record of one deployment run.
type Session struct {
	ID        string
	Spec      api.DeploymentSpec
	Workspace string
	Artifact  string
	Child     proc.Handle
	StartedAt time.Time

	torndown bool
}

func newSession(spec api.DeploymentSpec) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Spec:      spec,
		Workspace: filepath.Join(".", spec.Name),
		StartedAt: time.Now(),
	}
}
