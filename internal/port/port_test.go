package port

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeInspector struct {
	mu         sync.Mutex
	conns      []Conn
	termErr    error
	terminated []int32
	// diesAfter maps pid to the number of Running polls before it exits.
	diesAfter map[int32]int
}

func (f *fakeInspector) Connections(context.Context) ([]Conn, error) {
	return f.conns, nil
}

func (f *fakeInspector) Terminate(_ context.Context, pid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, pid)
	return f.termErr
}

func (f *fakeInspector) Running(_ context.Context, pid int32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	left, ok := f.diesAfter[pid]
	if !ok {
		return false, nil
	}
	if left <= 0 {
		return false, nil
	}
	f.diesAfter[pid] = left - 1
	return true, nil
}

func (f *fakeInspector) Name(context.Context, int32) (string, error) {
	return "java", nil
}

func newReclaimer(f *fakeInspector) *Reclaimer {
	return &Reclaimer{Inspector: f, Wait: 50 * time.Millisecond, Poll: 5 * time.Millisecond}
}

func TestFreeNoOwners(t *testing.T) {
	f := &fakeInspector{conns: []Conn{{LocalPort: 8080, PID: 42}}}
	r := newReclaimer(f)

	if err := r.Free(context.Background(), 9000); err != nil {
		t.Fatalf("free: %v", err)
	}
	if len(f.terminated) != 0 {
		t.Errorf("terminated %v, want none", f.terminated)
	}
}

func TestFreeTerminatesOwner(t *testing.T) {
	f := &fakeInspector{
		conns:     []Conn{{LocalPort: 9000, PID: 42, Status: "LISTEN"}},
		diesAfter: map[int32]int{42: 2},
	}
	r := newReclaimer(f)

	if err := r.Free(context.Background(), 9000); err != nil {
		t.Fatalf("free: %v", err)
	}
	if len(f.terminated) != 1 || f.terminated[0] != 42 {
		t.Errorf("terminated %v, want [42]", f.terminated)
	}
}

func TestFreeOwnerNeverExits(t *testing.T) {
	f := &fakeInspector{
		conns:     []Conn{{LocalPort: 9000, PID: 42}},
		diesAfter: map[int32]int{42: 1 << 30},
	}
	r := newReclaimer(f)

	err := r.Free(context.Background(), 9000)
	if err == nil {
		t.Fatal("expected error for stubborn owner")
	}
	if !strings.Contains(err.Error(), "still holds port") {
		t.Errorf("err = %v", err)
	}
}

func TestFreeTerminateError(t *testing.T) {
	f := &fakeInspector{
		conns:   []Conn{{LocalPort: 9000, PID: 42}},
		termErr: errors.New("operation not permitted"),
	}
	r := newReclaimer(f)

	err := r.Free(context.Background(), 9000)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "terminate pid 42") {
		t.Errorf("err = %v", err)
	}
}

func TestOwnersDedupesAndSkipsUnowned(t *testing.T) {
	f := &fakeInspector{conns: []Conn{
		{LocalPort: 9000, PID: 42, Status: "LISTEN"},
		{LocalPort: 9000, PID: 42, Status: "ESTABLISHED"},
		{LocalPort: 9000, PID: 0},
		{LocalPort: 9000, PID: -1},
		{LocalPort: 9000, PID: 77},
		{LocalPort: 8080, PID: 99},
	}}
	r := newReclaimer(f)

	pids, err := r.Owners(context.Background(), 9000)
	if err != nil {
		t.Fatalf("owners: %v", err)
	}
	if len(pids) != 2 || pids[0] != 42 || pids[1] != 77 {
		t.Errorf("pids = %v, want [42 77]", pids)
	}
}
