package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	counters   []counterCall
	histograms []histCall
	flushCount int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := current()
	fb := &fakeBackend{}
	SetBackend(fb)
	t.Cleanup(func() { SetBackend(orig) })
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordStep("ingest", "load", nil, 2*time.Second)
	RecordStep("ingest", "store", errors.New("boom"), 1500*time.Millisecond)

	require.Len(t, fb.counters, 2)
	require.Len(t, fb.histograms, 2)

	assert.Equal(t, counterCall{StepTotal, 1, Labels{"job": "ingest", "step": "load", "status": "success"}}, fb.counters[0])
	assert.Equal(t, "failure", fb.counters[1].labels["status"])
	assert.Equal(t, StepDurationSeconds, fb.histograms[0].name)
	assert.InDelta(t, 2.0, fb.histograms[0].value, 0.001)
	assert.InDelta(t, 1.5, fb.histograms[1].value, 0.001)
}

func TestRecordRowAndRun(t *testing.T) {
	fb := install(t)

	RecordRow("ingest", "ingested", 3)
	RecordRow("ingest", "stored", 0)
	RecordRow("ingest", "duplicates", 5)
	RecordRun("ingest", "ok")

	require.Len(t, fb.counters, 3)
	assert.Equal(t, counterCall{RecordsTotal, 3, Labels{"job": "ingest", "kind": "ingested"}}, fb.counters[0])
	assert.Equal(t, counterCall{RecordsTotal, 5, Labels{"job": "ingest", "kind": "duplicates"}}, fb.counters[1])
	assert.Equal(t, counterCall{RunsTotal, 1, Labels{"job": "ingest", "status": "ok"}}, fb.counters[2])
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := install(t)
	assert.Same(t, fb, current())

	require.NoError(t, Flush())
	assert.Equal(t, 1, fb.flushCount)

	SetBackend(nil)
	assert.Same(t, fb, current(), "SetBackend(nil) keeps the backend")
}

func TestDefaultBackendIsNop(t *testing.T) {
	assert.NotPanics(t, func() {
		var nb nopBackend
		nb.IncCounter("x", 1, nil)
		nb.ObserveHistogram("x", 1, nil)
		assert.NoError(t, nb.Flush())
	})
}
