package channel

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/1broseidon/winbridge/internal/ipc"
	"github.com/1broseidon/winbridge/internal/surface"
)

func TestNameAndParse(t *testing.T) {
	if got := Name(7, OpLoadURL); got != "7_loadURL" {
		t.Fatalf("Name = %q", got)
	}

	tests := []struct {
		name string
		id   surface.ID
		op   Op
		ok   bool
	}{
		{name: "12_show", id: 12, op: OpShow, ok: true},
		{name: "1_closed", id: 1, op: OpClosed, ok: true},
		{name: "create"},
		{name: "0_show"},
		{name: "07_show"},
		{name: "7_resize"},
		{name: "7_"},
		{name: "x_show"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, op, ok := Parse(tt.name)
			if ok != tt.ok || id != tt.id || op != tt.op {
				t.Fatalf("Parse(%q) = %v, %q, %v", tt.name, id, op, ok)
			}
		})
	}

	for _, op := range Ops {
		id, got, ok := Parse(Name(99, op))
		if !ok || id != 99 || got != op {
			t.Fatalf("round trip of %q failed", op)
		}
	}
}

func TestSetNamesAreNamespaced(t *testing.T) {
	a, b := NewSet(1), NewSet(11)
	seen := make(map[string]bool)
	for _, n := range append(a.Names(), b.Names()...) {
		if seen[n] {
			t.Fatalf("name %q shared between identities", n)
		}
		seen[n] = true
	}
	if len(a.Names()) != len(Ops) {
		t.Fatalf("set has %d names, want %d", len(a.Names()), len(Ops))
	}
}

func noopBindings() Bindings {
	h := func(context.Context, *ipc.Call) (any, error) { return nil, nil }
	return Bindings{
		Show:    h,
		Close:   h,
		LoadURL: h,
		Send:    h,
		Message: func(context.Context, *ipc.Call) {},
	}
}

func TestRegisterDeregister(t *testing.T) {
	router := ipc.NewRouter()
	reg := NewRegistry(router)

	set, err := reg.Register(3, noopBindings())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, n := range []string{set.Show, set.Close, set.LoadURL, set.Send} {
		if !router.HasHandler(n) {
			t.Fatalf("%s not bound", n)
		}
	}
	if router.ListenerCount(set.Message) != 1 {
		t.Fatalf("message listener not bound")
	}
	if router.HasHandler(set.Closed) {
		t.Fatalf("closed is a push and must not have a handler")
	}
	if got, ok := reg.Lookup(3); !ok || got != set {
		t.Fatalf("Lookup = %+v, %v", got, ok)
	}

	if _, err := reg.Register(3, noopBindings()); !errors.Is(err, ErrRegistered) {
		t.Fatalf("second Register err = %v", err)
	}

	if !reg.Deregister(3) {
		t.Fatalf("Deregister reported nothing removed")
	}
	if reg.Deregister(3) {
		t.Fatalf("second Deregister should be a no-op")
	}
	for _, n := range set.Names() {
		if router.HasHandler(n) || router.ListenerCount(n) != 0 {
			t.Fatalf("%s still bound after Deregister", n)
		}
	}
	if reg.Len() != 0 {
		t.Fatalf("Len = %d", reg.Len())
	}
}

func TestRegisterRollsBackOnConflict(t *testing.T) {
	router := ipc.NewRouter()
	reg := NewRegistry(router)

	squatter := func(context.Context, *ipc.Call) (any, error) { return nil, nil }
	if err := router.Handle(Name(5, OpLoadURL), squatter); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Register(5, noopBindings()); !errors.Is(err, ipc.ErrChannelInUse) {
		t.Fatalf("err = %v, want ErrChannelInUse", err)
	}
	if router.HasHandler(Name(5, OpShow)) || router.HasHandler(Name(5, OpClose)) {
		t.Fatalf("partial binding left behind")
	}
	if router.ListenerCount(Name(5, OpMessage)) != 0 {
		t.Fatalf("message listener left behind")
	}
	if _, ok := reg.Lookup(5); ok {
		t.Fatalf("failed registration recorded")
	}
}

func TestRegisterRejectsIncompleteBindings(t *testing.T) {
	reg := NewRegistry(ipc.NewRouter())
	b := noopBindings()
	b.Send = nil
	if _, err := reg.Register(1, b); err == nil {
		t.Fatalf("incomplete bindings accepted")
	}
}

func TestIDsSorted(t *testing.T) {
	reg := NewRegistry(ipc.NewRouter())
	for _, id := range []surface.ID{9, 2, 30} {
		if _, err := reg.Register(id, noopBindings()); err != nil {
			t.Fatal(err)
		}
	}
	if got := reg.IDs(); !reflect.DeepEqual(got, []surface.ID{2, 9, 30}) {
		t.Fatalf("IDs = %v", got)
	}
}
