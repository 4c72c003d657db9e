package resolver_test

import (
	"errors"
	"testing"

	"go.uber.org/multierr"

	"midisession/internal/resolver"
	"midisession/internal/transport"
)

func ep(h transport.Handle, id transport.UniqueID, name, display string) transport.EndpointRecord {
	return transport.EndpointRecord{Handle: h, UniqueID: id, Name: name, DisplayName: display, Direction: transport.Output}
}

var (
	keys   = ep(1, 101, "MIDI 1", "Keystation MIDI 1")
	pads   = ep(2, 102, "MIDI 1", "Launchpad MIDI 1")
	mine   = ep(3, 103, "Session Out", "midisession Session Out")
	noID   = ep(4, transport.InvalidUniqueID, "Bus", "IAC Bus")
	sample = []transport.EndpointRecord{keys, pads, mine, noID}
)

func ownedMine(e transport.EndpointRecord) bool { return e.UniqueID == mine.UniqueID }

func handles(eps []transport.EndpointRecord) []transport.Handle {
	out := make([]transport.Handle, 0, len(eps))
	for _, e := range eps {
		out = append(out, e.Handle)
	}
	return out
}

func equalHandles(a, b []transport.Handle) bool {
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

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		criteria []resolver.Criterion
		mode     resolver.Mode
		filter   resolver.Filter
		want     []transport.Handle
	}{
		{name: "by unique id", criteria: []resolver.Criterion{resolver.ByUniqueID(102)}, want: []transport.Handle{2}},
		{name: "invalid unique id matches nothing", criteria: []resolver.Criterion{resolver.ByUniqueID(transport.InvalidUniqueID)}, want: []transport.Handle{}},
		{name: "by name matches every endpoint with that name", criteria: []resolver.Criterion{resolver.ByName("MIDI 1")}, want: []transport.Handle{1, 2}},
		{name: "by display name", criteria: []resolver.Criterion{resolver.ByDisplayName("IAC Bus")}, want: []transport.Handle{4}},
		{name: "fallback prefers id", criteria: []resolver.Criterion{resolver.ByUniqueIDWithFallback(101, "Launchpad MIDI 1")}, want: []transport.Handle{1}},
		{name: "fallback uses display name when id absent", criteria: []resolver.Criterion{resolver.ByUniqueIDWithFallback(999, "Launchpad MIDI 1")}, want: []transport.Handle{2}},
		{name: "empty criteria binds nothing", criteria: nil, want: []transport.Handle{}},
		{name: "overlapping criteria deduplicate", criteria: []resolver.Criterion{resolver.ByUniqueID(101), resolver.ByName("MIDI 1")}, want: []transport.Handle{1, 2}},
		{name: "owned excluded by default", criteria: []resolver.Criterion{resolver.ByUniqueID(103)}, want: []transport.Handle{}},
		{name: "owned included on request", criteria: []resolver.Criterion{resolver.ByUniqueID(103)}, filter: resolver.Filter{Owned: true}, want: []transport.Handle{3}},
		{name: "all mode skips owned", mode: resolver.ModeAll, want: []transport.Handle{1, 2, 4}},
		{name: "all mode with exclusions", mode: resolver.ModeAll, filter: resolver.Filter{Exclude: []resolver.Criterion{resolver.ByName("MIDI 1")}}, want: []transport.Handle{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := handles(resolver.Resolve(tt.criteria, tt.mode, tt.filter, sample, ownedMine))
			if !equalHandles(got, tt.want) {
				t.Fatalf("Resolve = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiffKeyedByIdentity(t *testing.T) {
	renamed := ep(1, 101, "MIDI 1", "Keystation MIDI 1 (renamed)")
	keep, bind, unbind := resolver.Diff([]transport.EndpointRecord{keys, pads}, []transport.EndpointRecord{renamed, noID})

	if len(keep) != 1 || keep[0].DisplayName != renamed.DisplayName {
		t.Fatalf("expected refreshed keep record, got %+v", keep)
	}
	if !equalHandles(handles(bind), []transport.Handle{4}) {
		t.Fatalf("unexpected bind set %v", handles(bind))
	}
	if !equalHandles(handles(unbind), []transport.Handle{2}) {
		t.Fatalf("unexpected unbind set %v", handles(unbind))
	}
}

func TestDiffRebindsReplugUnderNewHandle(t *testing.T) {
	replugged := ep(9, 101, "MIDI 1", "Keystation MIDI 1")
	keep, bind, unbind := resolver.Diff([]transport.EndpointRecord{keys}, []transport.EndpointRecord{replugged})

	if len(keep) != 0 {
		t.Fatalf("expected nothing kept, got %+v", keep)
	}
	if !equalHandles(handles(bind), []transport.Handle{9}) || !equalHandles(handles(unbind), []transport.Handle{1}) {
		t.Fatalf("expected rebind 1 -> 9, got bind=%v unbind=%v", handles(bind), handles(unbind))
	}
}

func TestCollidingUniqueIDsStayDistinct(t *testing.T) {
	first := ep(5, 200, "Synth", "Synth A")
	second := ep(6, 200, "Synth", "Synth B")
	endpoints := []transport.EndpointRecord{first, second, noID}

	tests := []struct {
		name     string
		criteria []resolver.Criterion
		mode     resolver.Mode
		want     []transport.Handle
	}{
		{name: "all mode", mode: resolver.ModeAll, want: []transport.Handle{5, 6, 4}},
		{name: "by unique id", criteria: []resolver.Criterion{resolver.ByUniqueID(200)}, want: []transport.Handle{5, 6}},
		{name: "by name", criteria: []resolver.Criterion{resolver.ByName("Synth")}, want: []transport.Handle{5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := handles(resolver.Resolve(tt.criteria, tt.mode, resolver.DefaultFilter(), endpoints, nil))
			if !equalHandles(got, tt.want) {
				t.Fatalf("Resolve = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("exclusion drops only the matching endpoint", func(t *testing.T) {
		filter := resolver.Filter{Exclude: []resolver.Criterion{resolver.ByDisplayName("Synth B")}}
		got := handles(resolver.Resolve(nil, resolver.ModeAll, filter, endpoints, nil))
		if !equalHandles(got, []transport.Handle{5, 4}) {
			t.Fatalf("Resolve = %v, want [5 4]", got)
		}
	})

	t.Run("diff keeps both bindings", func(t *testing.T) {
		keep, bind, unbind := resolver.Diff([]transport.EndpointRecord{first, second}, []transport.EndpointRecord{first, second})
		if !equalHandles(handles(keep), []transport.Handle{5, 6}) || len(bind) != 0 || len(unbind) != 0 {
			t.Fatalf("keep=%v bind=%v unbind=%v", handles(keep), handles(bind), handles(unbind))
		}
	})

	t.Run("diff binds the second colliding endpoint", func(t *testing.T) {
		keep, bind, unbind := resolver.Diff([]transport.EndpointRecord{first}, []transport.EndpointRecord{first, second})
		if !equalHandles(handles(keep), []transport.Handle{5}) || !equalHandles(handles(bind), []transport.Handle{6}) || len(unbind) != 0 {
			t.Fatalf("keep=%v bind=%v unbind=%v", handles(keep), handles(bind), handles(unbind))
		}
	})
}

func TestReconcileContinuesPastFailures(t *testing.T) {
	boom := errors.New("boom")
	var bound, unbound []transport.Handle
	bind := func(e transport.EndpointRecord) error {
		if e.Handle == 2 {
			return boom
		}
		bound = append(bound, e.Handle)
		return nil
	}
	unbind := func(e transport.EndpointRecord) error {
		if e.Handle == 3 {
			return boom
		}
		unbound = append(unbound, e.Handle)
		return nil
	}

	current := []transport.EndpointRecord{mine, noID}
	wanted := []transport.EndpointRecord{keys, pads}
	out, err := resolver.Reconcile(current, wanted, bind, unbind)

	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !errors.Is(err, transport.ErrPartial) || !errors.Is(err, boom) {
		t.Fatalf("expected partial failure wrapping cause, got %v", err)
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("expected 2 individual failures, got %d", n)
	}
	if out.Added != 1 || out.Removed != 1 || out.Failures != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	// The endpoint that failed to unbind stays bound so the next pass retries.
	if !equalHandles(handles(out.Bound), []transport.Handle{3, 1}) {
		t.Fatalf("unexpected bound set %v", handles(out.Bound))
	}
	if !equalHandles(bound, []transport.Handle{1}) || !equalHandles(unbound, []transport.Handle{4}) {
		t.Fatalf("unexpected calls bound=%v unbound=%v", bound, unbound)
	}
}

func TestReconcileNoChanges(t *testing.T) {
	calls := 0
	count := func(transport.EndpointRecord) error { calls++; return nil }
	out, err := resolver.Reconcile([]transport.EndpointRecord{keys}, []transport.EndpointRecord{keys}, count, count)
	if err != nil || calls != 0 {
		t.Fatalf("expected no transport calls, got %d err=%v", calls, err)
	}
	if len(out.Bound) != 1 {
		t.Fatalf("unexpected bound set %+v", out.Bound)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := resolver.ParseMode("all"); err != nil || m != resolver.ModeAll {
		t.Fatalf("ParseMode(all) = %v, %v", m, err)
	}
	if m, err := resolver.ParseMode(""); err != nil || m != resolver.ModeCriteria {
		t.Fatalf("ParseMode(\"\") = %v, %v", m, err)
	}
	if _, err := resolver.ParseMode("some"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
