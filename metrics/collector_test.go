package metrics

import (
	"sync"
	"testing"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("remote")

	c.IncCallStarted()
	c.IncCallStarted()
	c.IncCallCompleted()
	c.IncCallFailed("transport")
	c.IncRemoteRoundTrip()
	c.IncNotFound()
	c.IncEncodeError()
	c.IncDecodeError()
	c.StreamOpened()
	c.AddChunksSent(3)
	c.AddChunksReceived(2)

	snap := c.Snapshot()
	if snap.CallsStarted != 2 || snap.CallsCompleted != 1 || snap.CallsFailed != 1 {
		t.Errorf("unexpected call counters: %+v", snap)
	}
	if snap.FailedByKind["transport"] != 1 {
		t.Errorf("expected failure recorded by kind, got %v", snap.FailedByKind)
	}
	if snap.RemoteRoundTrips != 1 || snap.NotFound != 1 {
		t.Errorf("unexpected dispatch counters: %+v", snap)
	}
	if snap.EncodeErrors != 1 || snap.DecodeErrors != 1 {
		t.Errorf("unexpected codec counters: %+v", snap)
	}
	if snap.StreamsOpened != 1 || snap.StreamsActive != 1 {
		t.Errorf("unexpected stream counters: %+v", snap)
	}
	if snap.ChunksSent != 3 || snap.ChunksReceived != 2 {
		t.Errorf("unexpected chunk counters: %+v", snap)
	}
	if snap.Mode != "remote" {
		t.Errorf("expected mode dimension, got %q", snap.Mode)
	}
}

func TestCollector_StreamsActiveFloor(t *testing.T) {
	c := NewCollector("local")
	c.StreamClosed()
	if got := c.Snapshot().StreamsActive; got != 0 {
		t.Errorf("expected active streams to floor at zero, got %d", got)
	}

	c.StreamOpened()
	c.StreamClosed()
	if got := c.Snapshot().StreamsActive; got != 0 {
		t.Errorf("expected zero active streams, got %d", got)
	}
}

func TestCollector_NilReceiverSafe(t *testing.T) {
	var c *Collector

	c.IncCallStarted()
	c.IncCallFailed("remote")
	c.StreamOpened()
	c.AddChunksSent(1)

	snap := c.Snapshot()
	if snap.CallsStarted != 0 {
		t.Errorf("expected empty snapshot from nil collector, got %+v", snap)
	}
	if snap.FailedByKind == nil {
		t.Error("expected a usable empty map from nil collector")
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector("local")
	c.IncCallFailed("codec")

	snap := c.Snapshot()
	snap.FailedByKind["codec"] = 99

	if got := c.Snapshot().FailedByKind["codec"]; got != 1 {
		t.Errorf("expected snapshot mutation not to leak back, got %d", got)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("local")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncCallStarted()
				c.IncCallCompleted()
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.CallsStarted != 1000 || snap.CallsCompleted != 1000 {
		t.Errorf("expected 1000/1000, got %d/%d", snap.CallsStarted, snap.CallsCompleted)
	}
}
