package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/atrium/internal/core"
	"github.com/dkeye/atrium/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) all() []core.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func register(r *Registry, id string) (core.OccupantSession, *fakeConn) {
	conn := &fakeConn{}
	sess := core.NewOccupantSession(core.ConnID(id), "user-"+id, conn)
	r.Register(core.ConnID(id), sess, func() {})
	return sess, conn
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	register(r, "a")

	if _, ok := r.Lookup("a"); !ok {
		t.Fatal("registered connection must resolve")
	}
	if _, ok := r.Lookup("ghost"); ok {
		t.Fatal("unknown connection must not resolve")
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("count: want 1, got %d", got)
	}
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	register(r, "a")

	r.Unregister("a")
	r.Unregister("a")
	r.Unregister("ghost")

	if _, ok := r.Lookup("a"); ok {
		t.Fatal("unregistered connection still resolves")
	}
}

func TestRegistryVenueBinding(t *testing.T) {
	r := NewRegistry()
	register(r, "a")

	if _, _, ok := r.VenueOf("a"); ok {
		t.Fatal("fresh connection must be unjoined")
	}
	if !r.SetVenue("a", "lounge", domain.RoleBroadcaster) {
		t.Fatal("SetVenue on a live connection must succeed")
	}
	vid, role, ok := r.VenueOf("a")
	if !ok || vid != "lounge" || role != domain.RoleBroadcaster {
		t.Fatalf("venue binding: %v %v %v", vid, role, ok)
	}
	r.ClearVenue("a")
	if _, _, ok := r.VenueOf("a"); ok {
		t.Fatal("cleared connection must be unjoined")
	}
	if r.SetVenue("ghost", "lounge", domain.RoleParticipant) {
		t.Fatal("SetVenue on a missing connection must fail")
	}
}

func TestRegistryBindDisplayName(t *testing.T) {
	r := NewRegistry()
	sess, _ := register(r, "a")

	if err := r.Bind("a", "alice"); err != nil {
		t.Fatal(err)
	}
	if sess.DisplayName() != "alice" {
		t.Fatalf("display name: %q", sess.DisplayName())
	}
	if err := r.Bind("a", ""); !errors.Is(err, domain.ErrDisplayNameEmpty) {
		t.Fatalf("empty name: want ErrDisplayNameEmpty, got %v", err)
	}
	// Missing connection is a no-op, not a fault.
	if err := r.Bind("ghost", "bob"); err != nil {
		t.Fatalf("bind on missing connection: %v", err)
	}
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	conn := &fakeConn{}
	r.Register("a", core.NewOccupantSession("a", "user-a", conn), cancel)

	if !r.Cancel("a") {
		t.Fatal("cancel on live connection must report true")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel func did not fire")
	}
	if r.Cancel("ghost") {
		t.Fatal("cancel on missing connection must report false")
	}
}
