package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"crowdseg-service/src/clock"
	"crowdseg-service/src/db"
	"crowdseg-service/src/models"
	"crowdseg-service/src/rabbitmq"
	"crowdseg-service/src/repository"
	"crowdseg-service/src/schemas"
	"crowdseg-service/src/storage"
)

// mergeWeight is the alpha passed to the consensus merge.
const mergeWeight = 2.0

// ConclusionService decides when an assignment has collected enough
// results, flips the monotonic concluded flag and triggers the consensus
// merge. Concluding is idempotent: the compare-and-set on the flag makes
// a concurrent or repeated conclude a no-op.
type ConclusionService struct {
	db          *db.DB
	assignments *repository.AssignmentRepository
	sessions    *repository.SessionRepository
	results     *storage.ResultStore
	merge       MergeGateway
	publisher   rabbitmq.Publisher
	exchange    string
	clock       clock.Clock
}

// NewConclusionService creates a new conclusion service.
func NewConclusionService(database *db.DB, assignments *repository.AssignmentRepository, sessions *repository.SessionRepository, results *storage.ResultStore, merge MergeGateway, publisher rabbitmq.Publisher, exchange string, clk clock.Clock) *ConclusionService {
	return &ConclusionService{
		db:          database,
		assignments: assignments,
		sessions:    sessions,
		results:     results,
		merge:       merge,
		publisher:   publisher,
		exchange:    exchange,
		clock:       clk,
	}
}

// Evaluate re-checks an assignment after a session closed with a result.
// It concludes the assignment once the completed-result count reaches the
// threshold. Merge failures are logged and non-fatal: the assignment
// still concludes without a merge.
func (s *ConclusionService) Evaluate(ctx context.Context, assignmentID string) error {
	conn := s.db.GetConnection()

	assignment, err := s.assignments.GetByID(ctx, conn, assignmentID)
	if err != nil {
		return err
	}
	if assignment.Concluded {
		return nil
	}

	resultCount, err := s.sessions.CountResults(ctx, conn, assignmentID)
	if err != nil {
		return err
	}
	if resultCount < assignment.MinResults {
		return nil
	}

	flipped, err := s.assignments.SetConcluded(ctx, conn, assignmentID)
	if err != nil {
		return err
	}
	if !flipped {
		// A concurrent evaluation got there first.
		return nil
	}

	slog.Info("Assignment concluded",
		"assignment_id", assignmentID,
		"result_count", resultCount)

	s.finishConclusion(ctx, assignment, resultCount)
	return nil
}

// EnforceConcluded is the periodic reconciliation sweep. It re-derives
// concluded for every public non-concluded assignment, counting sessions
// that hold a result or are still in flight, and flips the ones already
// at the threshold. It never un-concludes; both rules agree once all
// in-flight sessions settle.
func (s *ConclusionService) EnforceConcluded(ctx context.Context) error {
	now := s.clock.Now()

	ids, err := s.assignments.SweepCandidates(ctx, now)
	if err != nil {
		return err
	}

	for _, assignmentID := range ids {
		flipped, err := s.assignments.SetConcluded(ctx, s.db.GetConnection(), assignmentID)
		if err != nil {
			return err
		}
		if !flipped {
			continue
		}

		assignment, err := s.assignments.GetByID(ctx, s.db.GetConnection(), assignmentID)
		if err != nil {
			return err
		}
		resultCount, err := s.sessions.CountResults(ctx, s.db.GetConnection(), assignmentID)
		if err != nil {
			return err
		}

		slog.Info("Assignment concluded by sweep",
			"assignment_id", assignmentID,
			"result_count", resultCount)
		s.finishConclusion(ctx, assignment, resultCount)
	}
	return nil
}

// MergeAssignment recomputes the consensus merge on demand, the retry
// path for a merge that was unavailable at conclusion time.
func (s *ConclusionService) MergeAssignment(ctx context.Context, assignmentID string) error {
	assignment, err := s.assignments.GetByID(ctx, s.db.GetConnection(), assignmentID)
	if err != nil {
		return err
	}
	if !assignment.Concluded {
		return models.ErrNotConcluded
	}
	return s.mergeResults(ctx, assignment)
}

// finishConclusion runs the post-flip side effects: the concluded event
// and the merge. Both are outside any transaction and non-fatal.
func (s *ConclusionService) finishConclusion(ctx context.Context, assignment *models.Assignment, resultCount int) {
	if err := s.mergeResults(ctx, assignment); err != nil {
		slog.Warn("Merge unavailable, assignment concluded without merge",
			"assignment_id", assignment.ID, "error", err)
	}

	// Re-read for the merge ref the merge may just have stored.
	concluded, err := s.assignments.GetByID(ctx, s.db.GetConnection(), assignment.ID)
	if err != nil {
		concluded = assignment
	}
	s.publishConcluded(concluded, resultCount)
}

func (s *ConclusionService) mergeResults(ctx context.Context, assignment *models.Assignment) error {
	refs, err := s.sessions.ListResultRefs(ctx, assignment.ID)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return models.ErrMergeUnavailable
	}

	merged, err := s.merge.MergeMasks(ctx, refs, mergeWeight)
	if err != nil {
		return err
	}

	if assignment.HasMerge() {
		// First stored merge wins; a recomputation is tolerated but
		// never overwrites it.
		return nil
	}

	ref, err := s.results.SaveMerge(ctx, assignment.ID, assignment.TileRef, merged)
	if err != nil {
		return err
	}
	if err := s.assignments.SetMergeRef(ctx, assignment.ID, ref); err != nil {
		return err
	}

	slog.Info("Stored consensus merge", "assignment_id", assignment.ID, "merge_ref", ref)
	return nil
}

func (s *ConclusionService) publishConcluded(assignment *models.Assignment, resultCount int) {
	event := schemas.ConcludedEvent{
		AssignmentID: assignment.ID,
		TaskID:       assignment.TaskID,
		ResultCount:  resultCount,
		MergeRef:     assignment.MergeRef,
		ConcludedAt:  s.clock.Now().Format(time.RFC3339),
	}
	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal concluded event", "assignment_id", assignment.ID, "error", err)
		return
	}
	if err := s.publisher.Publish(s.exchange, body); err != nil {
		slog.Warn("Failed to publish concluded event",
			"assignment_id", assignment.ID, "error", err)
	}
}
