package cache

import (
	"errors"
	"sync"
	"testing"

	"midisession/internal/transport"
)

type fakeEnum struct {
	devices   []transport.DeviceRecord
	endpoints []transport.EndpointRecord
	err       error
}

func (f *fakeEnum) Devices() ([]transport.DeviceRecord, error) { return f.devices, f.err }

func (f *fakeEnum) Entities() ([]transport.EntityRecord, error) { return nil, nil }

func (f *fakeEnum) Endpoints() ([]transport.EndpointRecord, error) { return f.endpoints, nil }

func TestRebuildPartitionsOwnership(t *testing.T) {
	src := &fakeEnum{endpoints: []transport.EndpointRecord{
		{Handle: 1, UniqueID: 10, Name: "mine in", Direction: transport.Input},
		{Handle: 2, UniqueID: 11, Name: "theirs in", Direction: transport.Input},
		{Handle: 3, UniqueID: 12, Name: "mine out", Direction: transport.Output},
	}}
	owned := func(ep transport.EndpointRecord) bool { return ep.UniqueID == 10 || ep.UniqueID == 12 }

	c := New()
	snap, err := c.Rebuild(src, owned)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(snap.Inputs) != 2 || len(snap.Outputs) != 1 {
		t.Fatalf("unexpected partition sizes: in=%d out=%d", len(snap.Inputs), len(snap.Outputs))
	}
	if len(snap.InputsOwned) != 1 || snap.InputsOwned[0].Handle != 1 {
		t.Fatalf("unexpected owned inputs %+v", snap.InputsOwned)
	}
	if len(snap.InputsUnowned) != 1 || snap.InputsUnowned[0].Handle != 2 {
		t.Fatalf("unexpected unowned inputs %+v", snap.InputsUnowned)
	}
	if len(snap.OutputsOwned) != 1 || len(snap.OutputsUnowned) != 0 {
		t.Fatalf("unexpected outputs %+v / %+v", snap.OutputsOwned, snap.OutputsUnowned)
	}
	if c.Load() != snap {
		t.Fatal("expected rebuilt snapshot to be published")
	}
	if ep, ok := snap.EndpointByUniqueID(11); !ok || ep.Name != "theirs in" {
		t.Fatalf("lookup by id failed: %+v %v", ep, ok)
	}
}

func TestRebuildFailureKeepsPreviousSnapshot(t *testing.T) {
	src := &fakeEnum{endpoints: []transport.EndpointRecord{{Handle: 1, Direction: transport.Output}}}
	c := New()
	first, err := c.Rebuild(src, nil)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	src.err = errors.New("host gone")
	got, err := c.Rebuild(src, nil)
	if err == nil {
		t.Fatal("expected enumeration error")
	}
	if got != first || c.Load() != first {
		t.Fatal("failed rebuild must not replace the published snapshot")
	}
}

func TestSnapshotGenerationsIncrease(t *testing.T) {
	c := New()
	src := &fakeEnum{}
	a, _ := c.Rebuild(src, nil)
	b, _ := c.Rebuild(src, nil)
	if b.Generation <= a.Generation {
		t.Fatalf("generation did not advance: %d -> %d", a.Generation, b.Generation)
	}
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := c.Load()
				if len(snap.Inputs) != len(snap.InputsOwned)+len(snap.InputsUnowned) {
					t.Errorf("partial snapshot observed at generation %d", snap.Generation)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		eps := make([]transport.EndpointRecord, i%7)
		for j := range eps {
			eps[j] = transport.EndpointRecord{Handle: transport.Handle(j + 1), UniqueID: transport.UniqueID(j + 1)}
		}
		_, _ = c.Rebuild(&fakeEnum{endpoints: eps}, func(ep transport.EndpointRecord) bool { return ep.UniqueID%2 == 0 })
	}
	close(stop)
	wg.Wait()
}

func TestNilSnapshotLookups(t *testing.T) {
	var s *Snapshot
	if _, ok := s.Endpoint(1); ok {
		t.Fatal("nil snapshot should not resolve handles")
	}
	if s.Endpoints(transport.Input) != nil {
		t.Fatal("nil snapshot should list nothing")
	}
}
