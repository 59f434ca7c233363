package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReconciler(t *testing.T, jobID string) *Reconciler {
	t.Helper()
	return NewReconciler(jobID, 64, zap.NewNop().Sugar())
}

func progressUpdate(state JobState, progress float64, message string) Update {
	return Update{State: state, Progress: &progress, Message: message}
}

func TestReconcilerStartsPending(t *testing.T) {
	rec := newTestReconciler(t, "job-1")

	status := rec.Status()
	assert.Equal(t, "job-1", status.JobID)
	assert.Equal(t, StatePending, status.State)
	assert.Equal(t, 0.0, status.Progress)
	assert.Nil(t, status.Result)
	assert.False(t, status.Connected)
}

func TestReconcilerAdvancesState(t *testing.T) {
	rec := newTestReconciler(t, "job-1")

	status := rec.Apply(progressUpdate(StateRunning, 0.25, "aligning reads"))
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, 0.25, status.Progress)
	assert.Equal(t, "aligning reads", status.Message)

	status = rec.Apply(progressUpdate(StateRunning, 0.5, "counting barcodes"))
	assert.Equal(t, 0.5, status.Progress)
	assert.Equal(t, "counting barcodes", status.Message)
}

func TestReconcilerDiscardsStaleState(t *testing.T) {
	rec := newTestReconciler(t, "job-1")

	rec.Apply(progressUpdate(StateRunning, 0.5, "halfway"))

	// A slow poll response still reporting pending arrives after the push
	// channel already advanced the job. The whole update is discarded,
	// including its progress and message.
	status := rec.Apply(progressUpdate(StatePending, 0.0, "queued"))
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, 0.5, status.Progress)
	assert.Equal(t, "halfway", status.Message)
}

func TestReconcilerProgressNeverDecreases(t *testing.T) {
	rec := newTestReconciler(t, "job-1")

	rec.Apply(progressUpdate(StateRunning, 0.4, "aligning"))

	// Equal rank, lower progress: state merge is a no-op and the stale
	// fraction must not overwrite the higher one.
	status := rec.Apply(progressUpdate(StateRunning, 0.3, ""))
	assert.Equal(t, 0.4, status.Progress)
	assert.Equal(t, "aligning", status.Message)
}

func TestReconcilerResultImpliesCompleted(t *testing.T) {
	rec := newTestReconciler(t, "job-1")

	rec.Apply(progressUpdate(StateRunning, 0.9, "writing matrix"))

	// Result envelopes carry no state field; the payload alone must flip
	// the record to completed.
	status := rec.Apply(Update{Result: map[string]interface{}{"cells": 5000.0}})
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, map[string]interface{}{"cells": 5000.0}, status.Result)

	select {
	case <-rec.Terminal():
	default:
		t.Fatal("terminal channel not closed after result")
	}
}

func TestReconcilerOutOfOrderConvergence(t *testing.T) {
	// The same three updates in two delivery orders must converge on the
	// same record.
	updates := []Update{
		progressUpdate(StateRunning, 0.4, "aligning"),
		{Result: map[string]interface{}{"cells": 5000.0}},
		progressUpdate(StateRunning, 0.3, ""),
	}

	forward := newTestReconciler(t, "job-1")
	for _, u := range updates {
		forward.Apply(u)
	}

	reordered := newTestReconciler(t, "job-1")
	reordered.Apply(updates[0])
	reordered.Apply(updates[2])
	reordered.Apply(updates[1])

	a, b := forward.Status(), reordered.Status()
	assert.Equal(t, a.State, b.State)
	assert.Equal(t, a.Progress, b.Progress)
	assert.Equal(t, a.Result, b.Result)
	assert.Equal(t, StateCompleted, a.State)
	assert.Equal(t, 0.4, a.Progress)
}

func TestReconcilerFailedIsFrozen(t *testing.T) {
	rec := newTestReconciler(t, "job-1")

	rec.Apply(progressUpdate(StateRunning, 0.6, "demultiplexing"))
	status := rec.Apply(Update{State: StateFailed, Message: "reference index missing"})
	assert.Equal(t, StateFailed, status.State)

	// Nothing moves a failed record: not a late result, not a completed
	// report, not fresh progress.
	status = rec.Apply(Update{Result: map[string]interface{}{"cells": 1.0}})
	assert.Equal(t, StateFailed, status.State)
	assert.Nil(t, status.Result)

	status = rec.Apply(progressUpdate(StateCompleted, 1.0, "done"))
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, "reference index missing", status.Message)
	assert.Equal(t, 0.6, status.Progress)
}

func TestReconcilerDuplicateTerminalIsIdempotent(t *testing.T) {
	rec := newTestReconciler(t, "job-1")

	rec.Apply(Update{State: StateCompleted, Result: map[string]interface{}{"cells": 5000.0}})
	first := rec.Status()

	// The poll backstop may deliver the same terminal snapshot once more
	// before it notices the terminal signal.
	second := rec.Apply(Update{State: StateCompleted, Result: map[string]interface{}{"cells": 9999.0}})
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, StateCompleted, second.State)
}

func TestReconcilerCompletedBackfillsResult(t *testing.T) {
	rec := newTestReconciler(t, "job-1")

	// Poll observed completion before the result envelope arrived.
	rec.Apply(Update{State: StateCompleted})
	require.Nil(t, rec.Status().Result)

	status := rec.Apply(Update{Result: map[string]interface{}{"cells": 5000.0}})
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, map[string]interface{}{"cells": 5000.0}, status.Result)
}

func TestReconcilerEmitsToSubscribers(t *testing.T) {
	rec := newTestReconciler(t, "job-1")

	rec.Apply(progressUpdate(StateRunning, 0.1, "started"))
	rec.Apply(Update{State: StateCompleted})
	rec.Close()

	var seen []JobState
	for status := range rec.Updates() {
		seen = append(seen, status.State)
	}
	assert.Equal(t, []JobState{StateRunning, StateCompleted}, seen)
}

func TestReconcilerDropsWhenSubscriberLags(t *testing.T) {
	rec := NewReconciler("job-1", 1, zap.NewNop().Sugar())

	rec.Apply(progressUpdate(StateRunning, 0.1, "a"))
	rec.Apply(progressUpdate(StateRunning, 0.2, "b"))
	rec.Apply(progressUpdate(StateRunning, 0.3, "c"))

	// The channel held only the first emission, but the record itself is
	// current.
	first := <-rec.Updates()
	assert.Equal(t, 0.1, first.Progress)
	assert.Equal(t, 0.3, rec.Status().Progress)
}

func TestReconcilerSetConnected(t *testing.T) {
	rec := newTestReconciler(t, "job-1")

	status := rec.SetConnected(true)
	assert.True(t, status.Connected)

	// Repeated flag writes with no change stay silent.
	rec.SetConnected(true)
	rec.SetConnected(false)
	rec.Close()

	var flags []bool
	for status := range rec.Updates() {
		flags = append(flags, status.Connected)
	}
	assert.Equal(t, []bool{true, false}, flags)
}

func TestReconcilerStaleUpdateDoesNotEmit(t *testing.T) {
	rec := newTestReconciler(t, "job-1")

	rec.Apply(progressUpdate(StateRunning, 0.5, "halfway"))
	rec.Apply(progressUpdate(StatePending, 0.0, "queued"))
	rec.Close()

	var count int
	for range rec.Updates() {
		count++
	}
	assert.Equal(t, 1, count)
}
