package service

import (
	"context"
	"testing"
	"time"

	"crowdseg-service/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetByWorkerNoWork(t *testing.T) {
	env := newTestEnv(t)

	view, err := env.allocation.GetByWorker(context.Background(), "w1")
	require.NoError(t, err)
	assert.Nil(t, view, "no available work is a normal outcome, not an error")
}

func TestGetByWorkerAllocatesAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	a := env.singleAssignment(3)
	ctx := context.Background()

	first, err := env.allocation.GetByWorker(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, a.ID, first.AssignmentID)
	assert.Equal(t, a.TileRef, first.TileRef)
	assert.Equal(t, "LIVEVESSEL", first.Algorithm)
	assert.Equal(t, int64(600), first.RemainingTimeSeconds)

	// polling again before any close or expiry returns the same session
	second, err := env.allocation.GetByWorker(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestUnpublishedAndUnworkableExcluded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	draft := env.createTask("t-draft", taskOptions{minResults: 1, timeoutSeconds: 600, published: false})
	env.createAssignment("a-draft", draft)

	public := env.createTask("t-public", taskOptions{minResults: 1, timeoutSeconds: 600, published: true})
	frozen := env.createAssignment("a-frozen", public)
	require.NoError(t, env.assignments.SetWorkable(ctx, frozen.ID, nil))

	view, err := env.allocation.GetByWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestAllocationOrdersByTaskCreationThenID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// the older task wins even though its assignment id sorts later
	older := env.createTask("t-older", taskOptions{minResults: 1, timeoutSeconds: 600, published: true})
	env.createAssignment("a-z2", older)
	env.createAssignment("a-z1", older)

	env.clock.Advance(time.Hour)
	newer := env.createTask("t-newer", taskOptions{minResults: 1, timeoutSeconds: 600, published: true})
	env.createAssignment("a-a1", newer)

	view, err := env.allocation.GetByWorker(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, "a-z1", view.AssignmentID, "earliest task first, ties broken by assignment id")
}

func TestWorkerNeverRepeatsAssignment(t *testing.T) {
	env := newTestEnv(t)
	a := env.singleAssignment(3)
	ctx := context.Background()

	view, err := env.allocation.GetByWorker(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, view)

	// skip-close reopens the assignment's slot
	require.NoError(t, env.sessionSvc.Close(ctx, view.SessionID, nil))
	assert.True(t, env.isAvailable(a.ID))

	// but not for this worker, who already had a session on it
	again, err := env.allocation.GetByWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, again)

	other, err := env.allocation.GetByWorker(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.Equal(t, a.ID, other.AssignmentID)
}

func TestExpiredSessionReclaimedOnPoll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := env.createTask("t1", taskOptions{minResults: 1, timeoutSeconds: 600, published: true})
	env.createAssignment("a1", task)
	env.createAssignment("a2", task)

	view, err := env.allocation.GetByWorker(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, "a1", view.AssignmentID)

	env.clock.Advance(601 * time.Second)

	next, err := env.allocation.GetByWorker(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.NotEqual(t, view.SessionID, next.SessionID, "the expired session is never handed back")
	assert.Equal(t, "a2", next.AssignmentID)

	// the stale session was closed at reclaim time, past its deadline
	old, err := env.sessions.GetByID(ctx, env.db.GetConnection(), view.SessionID)
	require.NoError(t, err)
	assert.True(t, old.Closed())
	assert.Equal(t, models.StateClosedExpired, old.StateAt(env.clock.Now()))
}

func TestUnpublishedTaskReclaimsOpenSession(t *testing.T) {
	env := newTestEnv(t)
	a := env.singleAssignment(1)
	ctx := context.Background()

	view, err := env.allocation.GetByWorker(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, view)

	require.NoError(t, env.tasks.SetPublished(ctx, a.TaskID, false))

	next, err := env.allocation.GetByWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, next, "no published work remains")

	// closed in time without a result: a skip, not an expiry
	old, err := env.sessions.GetByID(ctx, env.db.GetConnection(), view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateClosedSkipped, old.StateAt(env.clock.Now()))
}

func TestSlotAccountingAcrossWorkers(t *testing.T) {
	env := newTestEnv(t)
	a := env.singleAssignment(3)
	ctx := context.Background()

	for i, worker := range []string{"w1", "w2", "w3"} {
		assert.True(t, env.isAvailable(a.ID), "slot %d should be open", i)
		view, err := env.allocation.GetByWorker(ctx, worker)
		require.NoError(t, err)
		require.NotNil(t, view)
		assert.Equal(t, a.ID, view.AssignmentID)
	}

	// three active sessions fill all three needed slots
	assert.False(t, env.isAvailable(a.ID))

	view, err := env.allocation.GetByWorker(ctx, "w4")
	require.NoError(t, err)
	assert.Nil(t, view)

	availability, err := env.allocation.Availability(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, availability.ActiveSessions)
	assert.Equal(t, 3, availability.RemainingNeeded)
	assert.False(t, availability.Concluded)
}

func TestOpenSessionUniquePerWorker(t *testing.T) {
	env := newTestEnv(t)
	env.singleAssignment(3)
	ctx := context.Background()

	view, err := env.allocation.GetByWorker(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, view)

	// bypass the engine and try to force a second open session
	err = env.sessions.Create(ctx, env.db.GetConnection(), &models.Session{
		ID:                 "forced",
		AssignmentID:       view.AssignmentID,
		WorkerID:           "w1",
		StartTime:          env.clock.Now(),
		ExpirationDeadline: env.clock.Now().Add(10 * time.Minute),
	})
	assert.ErrorIs(t, err, models.ErrWorkerBusy)
}
