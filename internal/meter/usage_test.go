package meter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// collectSink gathers records for assertions
type collectSink struct {
	mu      sync.Mutex
	records []UsageRecord
	closed  bool
}

func (s *collectSink) Append(_ context.Context, rec UsageRecord) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}

func (s *collectSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *collectSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestRecorder_DeliversRecords(t *testing.T) {
	sink := &collectSink{}
	r := NewRecorder(sink, 16, zerolog.Nop())

	for i := 0; i < 5; i++ {
		r.Record(UsageRecord{
			CredentialID: "cred1",
			Chain:        "eth",
			Method:       "eth_blockNumber",
			ComputeUnits: CostTrivial,
			Timestamp:    time.Now().UTC(),
		})
	}
	r.Close()

	if got := sink.len(); got != 5 {
		t.Errorf("sink received %d records, want 5", got)
	}
	if !sink.closed {
		t.Error("sink not closed")
	}
	if r.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", r.Dropped())
	}
}

// blockingSink never returns until released, backing the buffer up
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Append(_ context.Context, _ UsageRecord) error {
	<-s.release
	return nil
}

func (s *blockingSink) Close() error { return nil }

func TestRecorder_FullBufferDropsNotBlocks(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	r := NewRecorder(sink, 2, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			r.Record(UsageRecord{Method: "eth_call"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	if r.Dropped() == 0 {
		t.Error("no drops counted despite a stalled sink")
	}

	close(sink.release)
	r.Close()
}
