package benchmark

import (
	"context"
	"fmt"
	"sync"
	"time"

	enginerrors "github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/errors"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/telemetry"
)

// Scheduler owns the run queue: a single run executes at a time, queued runs
// are promoted in submission order, and restarts are reconciled against the
// persisted attempt trail.
type Scheduler struct {
	store  *Store
	engine *Engine
	hub    *telemetry.Hub

	mu      sync.Mutex
	active  *activeRun
	stopped bool
	wg      sync.WaitGroup
}

type activeRun struct {
	runID     string
	profileID string
	cancel    context.CancelFunc
}

// NewScheduler builds a scheduler around the engine and store.
func NewScheduler(store *Store, engine *Engine, hub *telemetry.Hub) *Scheduler {
	return &Scheduler{store: store, engine: engine, hub: hub}
}

// RunSpec describes a run to create.
type RunSpec struct {
	Label     string
	Profile   *ModelProfile
	Questions []question.Question
	Dataset   question.Summary
}

// CreateRun persists a new draft run for the given selection.
func (s *Scheduler) CreateRun(spec RunSpec) (*BenchmarkRun, error) {
	if spec.Profile == nil {
		return nil, enginerrors.New(enginerrors.ErrCodeProfileInvalid, "run requires a profile")
	}
	if len(spec.Questions) == 0 {
		return nil, enginerrors.New(enginerrors.ErrCodeQuestionSet, "run requires at least one question")
	}

	ids := make([]string, len(spec.Questions))
	for i, q := range spec.Questions {
		ids[i] = q.ID
	}

	label := spec.Label
	if label == "" {
		label = fmt.Sprintf("%s — %s", spec.Profile.Name, time.Now().Format("2006-01-02 15:04"))
	}

	run := &BenchmarkRun{
		Label:          label,
		ProfileID:      spec.Profile.ID,
		ProfileName:    spec.Profile.Name,
		ProfileModelID: spec.Profile.ModelID,
		Status:         StatusDraft,
		QuestionIDs:    ids,
		DatasetLabel:   spec.Dataset.Label,
		DatasetTotal:   spec.Dataset.Total,
		DatasetFilter:  spec.Dataset.FilterDesc,
	}
	if err := s.store.CreateRun(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Enqueue moves a draft run into the queue and starts it immediately when no
// run is executing.
func (s *Scheduler) Enqueue(runID string) (*BenchmarkRun, error) {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(run.Status, StatusQueued) {
		return nil, enginerrors.New(enginerrors.ErrCodeRunConflict, "run cannot be queued from its current status").
			WithContext("runId", runID).
			WithContext("status", string(run.Status))
	}

	run.Status = StatusQueued
	if err := s.store.UpdateRun(run); err != nil {
		return nil, err
	}
	s.publish(telemetry.EventRunQueued, run)
	s.refreshQueueGauge()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoteLocked()
	return run, nil
}

// Cancel stops the active run mid-flight or withdraws a queued run.
func (s *Scheduler) Cancel(runID string) error {
	s.mu.Lock()
	if s.active != nil && s.active.runID == runID {
		cancel := s.active.cancel
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.mu.Unlock()

	run, err := s.store.GetRun(runID)
	if err != nil {
		return err
	}
	if !CanTransition(run.Status, StatusCancelled) {
		return enginerrors.New(enginerrors.ErrCodeRunConflict, "run cannot be cancelled from its current status").
			WithContext("runId", runID).
			WithContext("status", string(run.Status))
	}
	now := time.Now()
	run.Status = StatusCancelled
	run.CompletedAt = &now
	if err := s.store.UpdateRun(run); err != nil {
		return err
	}
	s.publish(telemetry.EventRunCancelled, run)
	s.refreshQueueGauge()
	return nil
}

// Busy reports whether a run is currently executing for the given profile.
// Diagnostics are rejected for busy profiles to keep metrics clean.
func (s *Scheduler) Busy(profileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.profileID == profileID
}

// ActiveRunID returns the currently executing run, if any.
func (s *Scheduler) ActiveRunID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	return s.active.runID, true
}

// promoteLocked starts the oldest queued run when the engine is idle.
// Caller must hold s.mu.
func (s *Scheduler) promoteLocked() {
	if s.active != nil || s.stopped {
		return
	}

	queued, err := s.store.QueuedRuns()
	if err != nil || len(queued) == 0 {
		return
	}
	run := queued[0]

	ctx, cancel := context.WithCancel(context.Background())
	s.active = &activeRun{runID: run.ID, profileID: run.ProfileID, cancel: cancel}
	telemetry.ActiveRuns.Set(1)
	s.publish(telemetry.EventRunPromoted, run)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		_ = s.engine.Execute(ctx, run)

		s.mu.Lock()
		s.active = nil
		telemetry.ActiveRuns.Set(0)
		s.refreshQueueGauge()
		s.promoteLocked()
		s.mu.Unlock()
	}()
}

// Reconcile repairs run state after a restart. A run left in running is
// completed with metrics recomputed from its attempts when every question has
// one, and failed otherwise; queued runs with no attempts are demoted to draft
// so an operator re-approves them, while queued runs that already have
// attempts were mid-flight and fail.
func (s *Scheduler) Reconcile() error {
	interrupted, err := s.store.ListRuns(StatusRunning)
	if err != nil {
		return err
	}
	for _, run := range interrupted {
		attempts, err := s.store.ListAttempts(run.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		run.CompletedAt = &now
		run.Metrics = ComputeMetrics(len(run.QuestionIDs), attempts)
		if len(attempts) == len(run.QuestionIDs) {
			run.Status = StatusCompleted
			s.publish(telemetry.EventRunCompleted, run)
		} else {
			run.Status = StatusFailed
			run.Error = fmt.Sprintf("interrupted by restart after %d of %d questions", len(attempts), len(run.QuestionIDs))
			s.publish(telemetry.EventRunFailed, run)
		}
		if err := s.store.UpdateRun(run); err != nil {
			return err
		}
	}

	queued, err := s.store.QueuedRuns()
	if err != nil {
		return err
	}
	for _, run := range queued {
		attempts, err := s.store.ListAttempts(run.ID)
		if err != nil {
			return err
		}
		if len(attempts) > 0 {
			// A queued run with attempts was mid-flight when the process
			// died; it cannot be re-approved as a clean draft.
			now := time.Now()
			run.Status = StatusFailed
			run.Error = fmt.Sprintf("interrupted by restart after %d of %d questions", len(attempts), len(run.QuestionIDs))
			run.CompletedAt = &now
			run.Metrics = ComputeMetrics(len(run.QuestionIDs), attempts)
			s.publish(telemetry.EventRunFailed, run)
		} else {
			run.Status = StatusDraft
		}
		if err := s.store.UpdateRun(run); err != nil {
			return err
		}
	}
	s.refreshQueueGauge()
	return nil
}

// Stop cancels the active run and waits for the worker to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.active != nil {
		s.active.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) refreshQueueGauge() {
	if queued, err := s.store.QueuedRuns(); err == nil {
		telemetry.QueuedRuns.Set(float64(len(queued)))
	}
}

func (s *Scheduler) publish(eventType telemetry.EventType, run *BenchmarkRun) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(telemetry.Event{
		Type:      eventType,
		RunID:     run.ID,
		ProfileID: run.ProfileID,
	})
}
