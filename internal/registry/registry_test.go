package registry

import (
	"errors"
	"testing"
)

type stubConn struct{ id string }

func (c *stubConn) ID() string        { return c.id }
func (c *stubConn) Send([]byte) error { return nil }
func (c *stubConn) Close()            {}

func newStub(id string) *stubConn { return &stubConn{id: id} }

func md(id string) Metadata { return Metadata{ID: id, DeviceName: id + "-device"} }

func ids(entries []Entry) (out []string) {
	for _, e := range entries {
		out = append(out, e.Metadata.ID)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRegistry_AddIsIdempotent(t *testing.T) {
	r := New()
	c := newStub("c1")
	if !r.Add(c) {
		t.Fatalf("first Add returned false")
	}
	if r.Add(c) {
		t.Fatalf("second Add returned true")
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("Len()=%d, want 1", got)
	}
	if got := r.RegisteredLen(); got != 0 {
		t.Fatalf("RegisteredLen()=%d, want 0", got)
	}
}

func TestRegistry_RegisterUnknownConn(t *testing.T) {
	r := New()
	if _, err := r.Register(newStub("c1"), md("a")); !errors.Is(err, ErrUnknownConn) {
		t.Fatalf("err=%v, want %v", err, ErrUnknownConn)
	}
}

func TestRegistry_SnapshotFollowsRegistrationOrder(t *testing.T) {
	r := New()
	c1, c2, c3 := newStub("c1"), newStub("c2"), newStub("c3")
	r.Add(c1)
	r.Add(c2)
	r.Add(c3)

	// c3 registers before c1; c2 never registers.
	mustRegister(t, r, c3, md("z"))
	mustRegister(t, r, c1, md("a"))

	if got, want := ids(r.Snapshot()), []string{"z", "a"}; !equalStrings(got, want) {
		t.Fatalf("Snapshot ids=%v, want %v", got, want)
	}
	if got := len(r.Connections()); got != 3 {
		t.Fatalf("len(Connections())=%d, want 3", got)
	}
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := New()
	c := newStub("c1")
	r.Add(c)
	mustRegister(t, r, c, md("a"))

	snap := r.Snapshot()
	r.Remove(c)

	if len(snap) != 1 || snap[0].Metadata.ID != "a" {
		t.Fatalf("snapshot changed after Remove: %+v", snap)
	}
	if got := len(r.Snapshot()); got != 0 {
		t.Fatalf("len(Snapshot())=%d, want 0", got)
	}
}

func TestRegistry_FindByIDFirstMatchWins(t *testing.T) {
	r := New()
	c1, c2 := newStub("c1"), newStub("c2")
	r.Add(c1)
	r.Add(c2)
	mustRegister(t, r, c1, md("dup"))
	mustRegister(t, r, c2, md("dup"))

	e, ok := r.FindByID("dup")
	if !ok || e.Conn != c1 {
		t.Fatalf("FindByID(dup)=%v,%v, want c1", e.Conn, ok)
	}

	r.Remove(c1)
	e, ok = r.FindByID("dup")
	if !ok || e.Conn != c2 {
		t.Fatalf("after removing c1 FindByID(dup)=%v,%v, want c2", e.Conn, ok)
	}

	r.Remove(c2)
	if _, ok := r.FindByID("dup"); ok {
		t.Fatalf("FindByID(dup) found an entry after both were removed")
	}
}

func TestRegistry_FindByIDIgnoresUnregistered(t *testing.T) {
	r := New()
	r.Add(newStub("c1"))
	if _, ok := r.FindByID(""); ok {
		t.Fatalf("unregistered placeholder matched empty id")
	}
}

func TestRegistry_EmptyIDIsRegistrable(t *testing.T) {
	r := New()
	c := newStub("c1")
	r.Add(c)
	mustRegister(t, r, c, Metadata{})
	if _, ok := r.FindByID(""); !ok {
		t.Fatalf("FindByID(\"\") did not find the entry registered with an empty id")
	}
}

func TestRegistry_ReRegisterUpdatesInPlace(t *testing.T) {
	r := New()
	c1, c2, c3 := newStub("c1"), newStub("c2"), newStub("c3")
	for _, c := range []*stubConn{c1, c2, c3} {
		r.Add(c)
	}
	mustRegister(t, r, c1, md("a"))
	mustRegister(t, r, c2, md("b"))
	mustRegister(t, r, c3, md("b"))

	first, err := r.Register(c1, md("b"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if first {
		t.Fatalf("re-registration reported first=true")
	}

	if got, want := ids(r.Snapshot()), []string{"b", "b", "b"}; !equalStrings(got, want) {
		t.Fatalf("Snapshot ids=%v, want %v", got, want)
	}
	if got := r.RegisteredLen(); got != 3 {
		t.Fatalf("RegisteredLen()=%d, want 3", got)
	}
	// c1 registered first, so it now wins lookups for "b".
	if e, _ := r.FindByID("b"); e.Conn != c1 {
		t.Fatalf("FindByID(b)=%v, want c1", e.Conn)
	}
	if _, ok := r.FindByID("a"); ok {
		t.Fatalf("old id a still resolves")
	}
}

func TestRegistry_RemoveUnknownConn(t *testing.T) {
	r := New()
	if _, ok := r.Remove(newStub("nope")); ok {
		t.Fatalf("Remove of unknown conn returned ok")
	}
}

func TestRegistry_RemoveReturnsEntry(t *testing.T) {
	r := New()
	c := newStub("c1")
	r.Add(c)
	mustRegister(t, r, c, md("a"))

	e, ok := r.Remove(c)
	if !ok || !e.Registered || e.Metadata.ID != "a" {
		t.Fatalf("Remove()=%+v,%v", e, ok)
	}
	if _, ok := r.Get(c); ok {
		t.Fatalf("Get after Remove returned ok")
	}
	if got := r.Len(); got != 0 {
		t.Fatalf("Len()=%d, want 0", got)
	}
}

func mustRegister(t *testing.T, r *Registry, c Conn, m Metadata) {
	t.Helper()
	if _, err := r.Register(c, m); err != nil {
		t.Fatalf("Register(%s): %v", c.ID(), err)
	}
}
