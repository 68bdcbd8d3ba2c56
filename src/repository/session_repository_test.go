package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"crowdseg-service/src/db"
	"crowdseg-service/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testStore struct {
	db          *db.DB
	tasks       *TaskRepository
	assignments *AssignmentRepository
	sessions    *SessionRepository
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	ctx := context.Background()

	database, err := db.NewSQLiteDB("file:" + filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate(ctx))

	return &testStore{
		db:          database,
		tasks:       NewTaskRepository(database),
		assignments: NewAssignmentRepository(database),
		sessions:    NewSessionRepository(database),
	}
}

func boolPtr(b bool) *bool { return &b }

func (s *testStore) seedAssignment(t *testing.T, taskID, assignmentID string, minResults int, published bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.tasks.CreateTask(ctx, &models.Task{
		ID:                      taskID,
		Name:                    "task " + taskID,
		Published:               published,
		Algorithm:               "LIVEWIRE",
		TileDimension:           128,
		MinResultsPerAssignment: minResults,
		TimeoutSeconds:          600,
		CreatedAt:               testStart,
	}))
	require.NoError(t, s.assignments.CreateAssignment(ctx, &models.Assignment{
		ID:             assignmentID,
		TaskID:         taskID,
		TileRef:        "mem://localhost/tiles/" + assignmentID + ".png",
		MinResults:     minResults,
		TimeoutSeconds: 600,
		Workable:       boolPtr(true),
		CreatedAt:      testStart,
	}))
}

func (s *testStore) seedSession(t *testing.T, id, assignmentID, workerID string) *models.Session {
	t.Helper()
	session := &models.Session{
		ID:                 id,
		AssignmentID:       assignmentID,
		WorkerID:           workerID,
		StartTime:          testStart,
		ExpirationDeadline: testStart.Add(10 * time.Minute),
	}
	require.NoError(t, s.sessions.Create(context.Background(), s.db.GetConnection(), session))
	return session
}

func TestOpenSessionUniquenessConstraint(t *testing.T) {
	store := newTestStore(t)
	store.seedAssignment(t, "t1", "a1", 3, true)
	store.seedAssignment(t, "t2", "a2", 3, true)
	ctx := context.Background()

	store.seedSession(t, "s1", "a1", "w1")

	err := store.sessions.Create(ctx, store.db.GetConnection(), &models.Session{
		ID:                 "s2",
		AssignmentID:       "a2",
		WorkerID:           "w1",
		StartTime:          testStart,
		ExpirationDeadline: testStart.Add(10 * time.Minute),
	})
	assert.ErrorIs(t, err, models.ErrWorkerBusy)

	// closing the first frees the worker
	require.NoError(t, store.sessions.Close(ctx, store.db.GetConnection(), "s1", testStart.Add(time.Minute), ""))
	store.seedSession(t, "s3", "a2", "w1")
}

func TestCloseIsCompareAndSet(t *testing.T) {
	store := newTestStore(t)
	store.seedAssignment(t, "t1", "a1", 3, true)
	ctx := context.Background()
	conn := store.db.GetConnection()

	store.seedSession(t, "s1", "a1", "w1")

	closeTime := testStart.Add(time.Minute)
	require.NoError(t, store.sessions.Close(ctx, conn, "s1", closeTime, "mem://localhost/results/s1.png"))
	assert.ErrorIs(t, store.sessions.Close(ctx, conn, "s1", closeTime.Add(time.Minute), ""),
		models.ErrAlreadyClosed)

	session, err := store.sessions.GetByID(ctx, conn, "s1")
	require.NoError(t, err)
	require.NotNil(t, session.CloseTime)
	assert.True(t, session.CloseTime.Equal(closeTime), "the first close wins")
	assert.True(t, session.HasResult())
}

func TestGetOpenForWorker(t *testing.T) {
	store := newTestStore(t)
	store.seedAssignment(t, "t1", "a1", 3, true)
	ctx := context.Background()
	conn := store.db.GetConnection()

	open, err := store.sessions.GetOpenForWorker(ctx, conn, "w1")
	require.NoError(t, err)
	assert.Nil(t, open)

	store.seedSession(t, "s1", "a1", "w1")

	open, err = store.sessions.GetOpenForWorker(ctx, conn, "w1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "s1", open.ID)

	require.NoError(t, store.sessions.Close(ctx, conn, "s1", testStart.Add(time.Minute), ""))
	open, err = store.sessions.GetOpenForWorker(ctx, conn, "w1")
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestAvailabilityCountsAndFindAvailable(t *testing.T) {
	store := newTestStore(t)
	store.seedAssignment(t, "t1", "a1", 2, true)
	ctx := context.Background()
	conn := store.db.GetConnection()

	store.seedSession(t, "s1", "a1", "w1")
	store.seedSession(t, "s2", "a1", "w2")

	counts, err := store.assignments.AvailabilityCounts(ctx, conn, "a1", testStart)
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityCounts{ActiveSessions: 2, ResultSessions: 0}, counts)

	// both slots taken
	ids, err := store.assignments.FindAvailableIDs(ctx, conn, "w9", testStart, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// a result closes one slot for good, a skip reopens the other
	require.NoError(t, store.sessions.Close(ctx, conn, "s1", testStart.Add(time.Minute), "mem://localhost/results/s1.png"))
	require.NoError(t, store.sessions.Close(ctx, conn, "s2", testStart.Add(time.Minute), ""))

	counts, err = store.assignments.AvailabilityCounts(ctx, conn, "a1", testStart.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityCounts{ActiveSessions: 0, ResultSessions: 1}, counts)

	ids, err = store.assignments.FindAvailableIDs(ctx, conn, "w9", testStart.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids)

	// but never for a worker who already touched the assignment
	ids, err = store.assignments.FindAvailableIDs(ctx, conn, "w1", testStart.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestExpiredSessionsFreeSlots(t *testing.T) {
	store := newTestStore(t)
	store.seedAssignment(t, "t1", "a1", 1, true)
	ctx := context.Background()
	conn := store.db.GetConnection()

	store.seedSession(t, "s1", "a1", "w1")

	ids, err := store.assignments.FindAvailableIDs(ctx, conn, "w9", testStart, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// past the deadline the open session stops counting as active
	later := testStart.Add(11 * time.Minute)
	ids, err = store.assignments.FindAvailableIDs(ctx, conn, "w9", later, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids)
}

func TestSetConcludedIsMonotonic(t *testing.T) {
	store := newTestStore(t)
	store.seedAssignment(t, "t1", "a1", 1, true)
	ctx := context.Background()
	conn := store.db.GetConnection()

	flipped, err := store.assignments.SetConcluded(ctx, conn, "a1")
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = store.assignments.SetConcluded(ctx, conn, "a1")
	require.NoError(t, err)
	assert.False(t, flipped, "a second conclude is a no-op")
}

func TestDeleteSessionIsARetraction(t *testing.T) {
	store := newTestStore(t)
	store.seedAssignment(t, "t1", "a1", 1, true)
	ctx := context.Background()
	conn := store.db.GetConnection()

	store.seedSession(t, "s1", "a1", "w1")
	require.NoError(t, store.sessions.RecordStats(ctx, "s1", 42))

	require.NoError(t, store.sessions.Delete(ctx, conn, "s1"))
	_, err := store.sessions.GetByID(ctx, conn, "s1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	assert.ErrorIs(t, store.sessions.Delete(ctx, conn, "s1"), models.ErrSessionNotFound)
}
