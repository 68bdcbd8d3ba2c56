package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"crowdseg-service/src/clock"
	"crowdseg-service/src/db"
	"crowdseg-service/src/models"
	"crowdseg-service/src/repository"
	"crowdseg-service/src/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakePreprocessor passes the raw bytes through and reports their length
// as the foreground pixel count.
type fakePreprocessor struct{}

func (fakePreprocessor) Normalize(_ context.Context, raw []byte, _ int) ([]byte, int, error) {
	return raw, len(raw), nil
}

// fakeMergeGateway returns canned data or a canned error and records its
// invocations.
type fakeMergeGateway struct {
	mu    sync.Mutex
	data  []byte
	err   error
	calls [][]string
}

func (g *fakeMergeGateway) MergeMasks(_ context.Context, refs []string, _ float64) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, refs)
	if g.err != nil {
		return nil, g.err
	}
	return g.data, nil
}

func (g *fakeMergeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// recordingPublisher captures published event bodies.
type recordingPublisher struct {
	mu     sync.Mutex
	events [][]byte
}

func (p *recordingPublisher) Publish(_ string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, body)
	return nil
}

func (p *recordingPublisher) eventCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type testEnv struct {
	t           *testing.T
	db          *db.DB
	clock       *clock.FakeClock
	tasks       *repository.TaskRepository
	assignments *repository.AssignmentRepository
	sessions    *repository.SessionRepository
	results     *storage.ResultStore
	merge       *fakeMergeGateway
	events      *recordingPublisher
	allocation  *AllocationService
	sessionSvc  *SessionService
	conclusion  *ConclusionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	database, err := db.NewSQLiteDB("file:" + filepath.Join(t.TempDir(), "crowdseg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate(ctx))

	clk := clock.NewFakeClock(testStart)
	tasks := repository.NewTaskRepository(database)
	assignments := repository.NewAssignmentRepository(database)
	sessions := repository.NewSessionRepository(database)
	results := storage.NewResultStore("mem://localhost/" + uuid.New().String())
	merge := &fakeMergeGateway{data: []byte("merged-mask")}
	events := &recordingPublisher{}

	conclusion := NewConclusionService(database, assignments, sessions, results,
		merge, events, "assignment.concluded", clk)
	allocation := NewAllocationService(database, tasks, assignments, sessions, clk)
	sessionSvc := NewSessionService(database, tasks, assignments, sessions,
		results, fakePreprocessor{}, conclusion, clk)

	return &testEnv{
		t:           t,
		db:          database,
		clock:       clk,
		tasks:       tasks,
		assignments: assignments,
		sessions:    sessions,
		results:     results,
		merge:       merge,
		events:      events,
		allocation:  allocation,
		sessionSvc:  sessionSvc,
		conclusion:  conclusion,
	}
}

func boolPtr(b bool) *bool { return &b }

type taskOptions struct {
	minResults     int
	timeoutSeconds int
	published      bool
}

func (e *testEnv) createTask(id string, opts taskOptions) *models.Task {
	e.t.Helper()
	task := &models.Task{
		ID:                      id,
		Name:                    "task " + id,
		Published:               opts.published,
		Algorithm:               "LIVEVESSEL",
		TileDimension:           256,
		TileBorder:              0.1,
		MinResultsPerAssignment: opts.minResults,
		TimeoutSeconds:          opts.timeoutSeconds,
		CreatedAt:               e.clock.Now(),
	}
	require.NoError(e.t, e.tasks.CreateTask(context.Background(), task))
	return task
}

func (e *testEnv) createAssignment(id string, task *models.Task) *models.Assignment {
	e.t.Helper()
	a := &models.Assignment{
		ID:             id,
		TaskID:         task.ID,
		TileRef:        "mem://localhost/tiles/" + id + ".png",
		MinResults:     task.MinResultsPerAssignment,
		TimeoutSeconds: task.TimeoutSeconds,
		Workable:       boolPtr(true),
		CreatedAt:      e.clock.Now(),
	}
	require.NoError(e.t, e.assignments.CreateAssignment(context.Background(), a))
	return a
}

// singleAssignment seeds one published task with one assignment.
func (e *testEnv) singleAssignment(minResults int) *models.Assignment {
	task := e.createTask("t1", taskOptions{
		minResults:     minResults,
		timeoutSeconds: 600,
		published:      true,
	})
	return e.createAssignment("a1", task)
}

func (e *testEnv) isAvailable(assignmentID string) bool {
	e.t.Helper()
	available, err := e.allocation.IsAvailable(context.Background(), assignmentID)
	require.NoError(e.t, err)
	return available
}
