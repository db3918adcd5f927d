package deploy

import (
	"errors"
	"strings"
	"testing"

	"github.com/javelin-dev/javelin/pkg/api"
)

func TestFailureError(t *testing.T) {
	f := &Failure{
		Kind:   KindFetchFailed,
		Phase:  api.PhaseFetch,
		Reason: "could not fetch repo",
	}
	msg := f.Error()
	if !strings.Contains(msg, "fetch_failed") {
		t.Errorf("msg = %q", msg)
	}
	if !strings.Contains(msg, "fetch phase") {
		t.Errorf("msg = %q", msg)
	}
}

func TestFailureUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	f := &Failure{
		Kind:   KindFetchFailed,
		Phase:  api.PhaseFetch,
		Reason: "could not fetch repo",
		Err:    cause,
	}
	if !errors.Is(f, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if !strings.Contains(f.Error(), "connection refused") {
		t.Errorf("msg = %q", f.Error())
	}
}
