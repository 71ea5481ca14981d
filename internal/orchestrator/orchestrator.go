package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calibrae/testflow/internal/device"
	"github.com/calibrae/testflow/internal/graph"
	"github.com/calibrae/testflow/internal/plan"
	"github.com/calibrae/testflow/internal/state"
	"github.com/calibrae/testflow/internal/validate"
	"github.com/calibrae/testflow/pkg/models"
)

// errStopped signals that the run loop should drain and pause the session.
var errStopped = errors.New("execution stopped")

// Orchestrator drives phase-by-phase execution of a test plan. A single
// coordinating goroutine owns all task result status transitions; group
// members run as bounded concurrent workers whose outcomes flow back over a
// channel and are persisted in arrival order.
type Orchestrator struct {
	store     state.Store
	adapter   device.Adapter
	validator *validate.Validator
	logger    *DebugLogger
	emitter   *EventEmitter
	pause     *PauseController
	poller    func()

	maxConcurrent int
	taskTimeout   time.Duration
}

// New creates an Orchestrator on top of a session store and an automation
// adapter.
func New(store state.Store, adapter device.Adapter, opts ...Option) *Orchestrator {
	o := &orchestratorOptions{
		maxConcurrent: DefaultMaxConcurrentTasks,
		taskTimeout:   DefaultTaskTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}
	if o.emitter == nil {
		o.emitter = NewEventEmitter(64)
	}
	if o.pause == nil {
		o.pause = NewPauseController()
	}
	if o.maxConcurrent < 1 {
		o.maxConcurrent = 1
	}

	return &Orchestrator{
		store:         store,
		adapter:       adapter,
		validator:     o.validator,
		logger:        o.logger,
		emitter:       o.emitter,
		pause:         o.pause,
		poller:        o.poller,
		maxConcurrent: o.maxConcurrent,
		taskTimeout:   o.taskTimeout,
	}
}

// Events returns the event stream subscribers consume.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// Controller returns the run-control surface for this orchestrator.
func (o *Orchestrator) Controller() *PauseController {
	return o.pause
}

// CanExecute reports whether every dependency of the task is present in
// completedSet with succeeded status. Pure predicate, no side effects.
func CanExecute(task *models.Task, completedSet map[string]bool) bool {
	for _, dep := range task.DependsOn {
		if !completedSet[dep] {
			return false
		}
	}
	return true
}

// ExecuteWorkflow validates the plan, creates a fresh session, and runs the
// plan to a final status. The returned session reflects the persisted state;
// only plan-level and storage-level errors escalate.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, p *models.TestPlan) (*models.Session, error) {
	if err := plan.Validate(p); err != nil {
		return nil, err
	}

	p.Status = models.PlanStatusRunning
	sessionID, err := o.store.CreateSession(p)
	if err != nil {
		return nil, err
	}
	session, err := o.store.GetSessionState(sessionID)
	if err != nil {
		return nil, err
	}

	o.logger.Log("session %s: starting plan %s (%d phases, %d tasks)",
		sessionID, p.ID, len(p.Phases), p.TaskCount())
	return o.run(ctx, session, 0)
}

// ResumeWorkflow reconstructs an interrupted session and re-enters the
// scheduling loop at the first phase with unfinished work. Tasks already in
// a terminal state are never re-executed.
func (o *Orchestrator) ResumeWorkflow(ctx context.Context, sessionID string) (*models.Session, error) {
	session, resumePoint, err := o.store.ResumeSession(sessionID)
	if err != nil {
		return nil, err
	}

	if err := o.store.UpdateSession(sessionID, resumePoint, models.SessionRunning); err != nil {
		return nil, err
	}
	session.Status = models.SessionRunning

	o.logger.Log("session %s: resuming at phase %d with %d terminal results",
		sessionID, resumePoint, session.TerminalCount())
	return o.run(ctx, session, resumePoint)
}

// run executes phases in declaration order starting at startPhase. Phases
// before the start point contribute their persisted outcomes to the
// phase-dependency check but are never re-executed.
func (o *Orchestrator) run(ctx context.Context, session *models.Session, startPhase int) (*models.Session, error) {
	phaseStatus := make(map[string]models.TaskStatus)

	for i := range session.Plan.Phases {
		ph := &session.Plan.Phases[i]

		if i < startPhase {
			outcome := phaseOutcome(session, ph)
			phaseStatus[ph.Name] = outcome
			if outcome == models.TaskStatusFailed {
				// The failure is already terminal on disk; the resumed
				// session must end the way the interrupted run would have.
				o.logger.Log("session %s: phase %s failed before the resume point, halting remaining phases",
					session.ID, ph.Name)
				session.Plan.Status = models.PlanStatusFailed
				return o.finish(session, i, models.SessionFailed)
			}
			continue
		}

		if unmet := unmetPhaseDep(ph, phaseStatus); unmet != "" {
			o.logger.Log("session %s: skipping phase %s, dependency %s did not succeed",
				session.ID, ph.Name, unmet)
			if err := o.skipPhase(session, ph, unmet); err != nil {
				return session, err
			}
			phaseStatus[ph.Name] = models.TaskStatusSkipped
			continue
		}

		if err := o.store.UpdateSession(session.ID, i, models.SessionRunning); err != nil {
			return session, err
		}
		session.PhaseIndex = i
		o.emitter.Emit(Event{Type: EventPhaseStarted, SessionID: session.ID, Phase: ph.Name})

		phaseFailed, err := o.executePhase(ctx, session, ph)
		switch {
		case errors.Is(err, errStopped):
			return o.finish(session, i, models.SessionPaused)
		case err != nil:
			return session, err
		case phaseFailed:
			phaseStatus[ph.Name] = models.TaskStatusFailed
			o.emitter.Emit(Event{
				Type: EventPhaseCompleted, SessionID: session.ID, Phase: ph.Name,
				Message: "phase failed, halting remaining phases",
			})
			o.logger.Log("session %s: phase %s failed, halting remaining phases", session.ID, ph.Name)
			session.Plan.Status = models.PlanStatusFailed
			return o.finish(session, i, models.SessionFailed)
		default:
			phaseStatus[ph.Name] = models.TaskStatusSucceeded
			o.emitter.Emit(Event{Type: EventPhaseCompleted, SessionID: session.ID, Phase: ph.Name})
		}
	}

	session.Plan.Status = models.PlanStatusCompleted
	return o.finish(session, len(session.Plan.Phases)-1, models.SessionCompleted)
}

// finish records the session's final status and returns a fresh snapshot.
func (o *Orchestrator) finish(session *models.Session, phaseIndex int, status models.SessionStatus) (*models.Session, error) {
	if phaseIndex < 0 {
		phaseIndex = 0
	}
	if err := o.store.UpdateSession(session.ID, phaseIndex, status); err != nil {
		return session, err
	}

	eventType := EventSessionDone
	if status == models.SessionPaused {
		eventType = EventSessionPaused
	}
	o.emitter.Emit(Event{Type: eventType, SessionID: session.ID, Message: string(status)})
	o.logger.Log("session %s: %s", session.ID, status)

	final, err := o.store.GetSessionState(session.ID)
	if err != nil {
		return session, err
	}
	return final, nil
}

// unmetPhaseDep returns the name of the first phase dependency that did not
// succeed, or "" if all are met.
func unmetPhaseDep(ph *models.Phase, phaseStatus map[string]models.TaskStatus) string {
	for _, dep := range ph.DependsOn {
		if phaseStatus[dep] != models.TaskStatusSucceeded {
			return dep
		}
	}
	return ""
}

// phaseOutcome derives a phase's outcome from persisted results, used for
// phases that ran before the resume point.
func phaseOutcome(session *models.Session, ph *models.Phase) models.TaskStatus {
	allSkipped := len(ph.Tasks) > 0
	for i := range ph.Tasks {
		r := session.Result(ph.Tasks[i].ID)
		if r == nil {
			return models.TaskStatusSkipped
		}
		if r.Status == models.TaskStatusFailed {
			return models.TaskStatusFailed
		}
		if r.Validation != nil && !r.Validation.Verdict {
			return models.TaskStatusFailed
		}
		if r.Status != models.TaskStatusSkipped {
			allSkipped = false
		}
	}
	if allSkipped {
		return models.TaskStatusSkipped
	}
	return models.TaskStatusSucceeded
}

// skipPhase persists a skipped result for every task in the phase that has
// not already reached a terminal state.
func (o *Orchestrator) skipPhase(session *models.Session, ph *models.Phase, unmetDep string) error {
	for i := range ph.Tasks {
		t := &ph.Tasks[i]
		if r := session.Result(t.ID); r != nil && r.Terminal() {
			continue
		}
		res := &models.TaskResult{
			TaskID:      t.ID,
			Status:      models.TaskStatusSkipped,
			ErrorDetail: fmt.Sprintf("phase dependency %s did not succeed", unmetDep),
		}
		if err := o.store.SaveTaskResult(session.ID, res); err != nil {
			return err
		}
		upsertSessionResult(session, res)
		o.emitter.Emit(Event{Type: EventTaskSkipped, SessionID: session.ID, Phase: ph.Name, TaskID: t.ID})
	}
	o.emitter.Emit(Event{Type: EventPhaseSkipped, SessionID: session.ID, Phase: ph.Name})
	return nil
}

// executePhase runs one phase's tasks in dependency order. It returns
// whether the phase failed; errStopped means the session should pause.
func (o *Orchestrator) executePhase(ctx context.Context, session *models.Session, ph *models.Phase) (bool, error) {
	tasks := make([]*models.Task, len(ph.Tasks))
	for i := range ph.Tasks {
		tasks[i] = &ph.Tasks[i]
	}

	g := graph.New()
	if err := g.Build(tasks); err != nil {
		return false, fmt.Errorf("%w: phase %s: %v", plan.ErrPlanInvalid, ph.Name, err)
	}

	// Seed from results persisted by an earlier run.
	attempts := make(map[string]int)
	for _, t := range tasks {
		r := session.Result(t.ID)
		if r == nil {
			continue
		}
		switch r.Status {
		case models.TaskStatusSucceeded:
			if r.Validation != nil && !r.Validation.Verdict {
				g.MarkFailed(t.ID)
			} else {
				g.MarkComplete(t.ID)
			}
		case models.TaskStatusFailed:
			g.MarkFailed(t.ID)
		case models.TaskStatusSkipped:
			g.MarkSkipped(t.ID)
		default:
			attempts[t.ID] = r.Attempts
		}
	}

	for {
		if err := o.checkRunControl(ctx); err != nil {
			return false, err
		}

		group := g.Ready()
		if len(group) == 0 {
			break
		}
		// The ready set is capped so a group never exceeds the
		// configured concurrency; the remainder forms a later group.
		if len(group) > o.maxConcurrent {
			group = group[:o.maxConcurrent]
		}

		if err := o.executeGroup(ctx, session, ph, g, group, attempts); err != nil {
			return false, err
		}
	}

	return g.FailedCount() > 0, nil
}

// checkRunControl is the between-groups suspension point: it polls the
// external signal source if one is installed, honors stop, blocks through a
// pause, and treats context cancellation as a stop so the session stays
// resumable.
func (o *Orchestrator) checkRunControl(ctx context.Context) error {
	if o.poller != nil {
		o.poller()
	}
	if ctx.Err() != nil || o.pause.IsStopped() {
		return errStopped
	}
	if err := o.pause.WaitIfPaused(ctx); err != nil {
		return errStopped
	}
	return nil
}

// attemptOutcome carries one worker's finished attempt back to the
// coordinator.
type attemptOutcome struct {
	task        *models.Task
	result      *models.TaskResult
	success     bool
	interrupted bool
}

// executeGroup runs one execution group concurrently and processes outcomes
// in arrival order: persist first, then validate, then update scheduling
// state. The group fully drains before the next one is selected.
func (o *Orchestrator) executeGroup(ctx context.Context, session *models.Session, ph *models.Phase, g *graph.DependencyGraph, group []*models.Task, attempts map[string]int) error {
	outcomes := make(chan *attemptOutcome, len(group))

	for _, t := range group {
		g.MarkStarted(t.ID)
		attempts[t.ID]++
		attempt := attempts[t.ID]
		o.emitter.Emit(Event{
			Type: EventTaskStarted, SessionID: session.ID, Phase: ph.Name,
			TaskID: t.ID, Attempt: attempt,
		})
		o.logger.Log("session %s: task %s attempt %d dispatched", session.ID, t.ID, attempt)
		go o.runTask(ctx, t, attempt, outcomes)
	}

	for range group {
		out := <-outcomes
		if err := o.finishAttempt(ctx, session, ph, g, out); err != nil {
			return err
		}
	}
	return nil
}

// runTask dispatches one task to the adapter under its execution deadline.
func (o *Orchestrator) runTask(ctx context.Context, t *models.Task, attempt int, outcomes chan<- *attemptOutcome) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = o.taskTimeout
	}

	res := &models.TaskResult{
		TaskID:    t.ID,
		Status:    models.TaskStatusRunning,
		Attempts:  attempt,
		StartedAt: time.Now(),
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	outcome, err := o.adapter.Execute(tctx, t)
	cancel()
	res.FinishedAt = time.Now()

	success := false
	interrupted := false
	switch {
	case err != nil && ctx.Err() != nil:
		// The run context went away while the attempt was in flight. That
		// is an interruption, not an execution failure: the attempt leaves
		// no record, so the task stays non-terminal and re-executes on
		// resume. The per-task deadline lands in the timeout branch below
		// because it cancels tctx while ctx stays live.
		interrupted = true
	case errors.Is(err, context.DeadlineExceeded):
		res.ErrorDetail = models.AttemptError(attempt, fmt.Sprintf("timeout after %s", timeout))
	case err != nil:
		res.ErrorDetail = models.AttemptError(attempt, err.Error())
	default:
		res.Output = outcome.Output
		if outcome.Success {
			success = true
		} else {
			detail := outcome.Error
			if detail == "" {
				detail = "adapter reported failure"
			}
			res.ErrorDetail = models.AttemptError(attempt, detail)
		}
	}

	outcomes <- &attemptOutcome{task: t, result: res, success: success, interrupted: interrupted}
}

// finishAttempt is the coordinator-side half of a task attempt: it decides
// the persisted status, writes it durably, then runs validation and updates
// the scheduling graph.
func (o *Orchestrator) finishAttempt(ctx context.Context, session *models.Session, ph *models.Phase, g *graph.DependencyGraph, out *attemptOutcome) error {
	t, res := out.task, out.result

	if out.interrupted {
		o.logger.Log("session %s: task %s attempt %d interrupted, no result recorded",
			session.ID, t.ID, res.Attempts)
		return nil
	}

	switch {
	case out.success:
		res.Status = models.TaskStatusSucceeded
	case res.Attempts <= t.Retries:
		// Budget remains: record the attempt without a terminal status
		// so the task stays re-executable, and requeue it into the
		// next execution group.
		res.Status = models.TaskStatusPending
	default:
		res.Status = models.TaskStatusFailed
	}

	if err := o.store.SaveTaskResult(session.ID, res); err != nil {
		return err
	}
	upsertSessionResult(session, res)

	switch res.Status {
	case models.TaskStatusPending:
		g.Requeue(t.ID)
		o.emitter.Emit(Event{
			Type: EventTaskRetried, SessionID: session.ID, Phase: ph.Name,
			TaskID: t.ID, Attempt: res.Attempts, Message: res.ErrorDetail,
		})
		o.logger.Log("session %s: task %s attempt %d failed, requeued", session.ID, t.ID, res.Attempts)
		return nil

	case models.TaskStatusFailed:
		if err := o.attachValidation(ctx, session, t, res); err != nil {
			return err
		}
		o.emitter.Emit(Event{
			Type: EventTaskFailed, SessionID: session.ID, Phase: ph.Name,
			TaskID: t.ID, Attempt: res.Attempts, Message: res.ErrorDetail,
		})
		return o.failTask(session, ph, g, t.ID)

	default: // succeeded
		if err := o.attachValidation(ctx, session, t, res); err != nil {
			return err
		}
		if res.Validation != nil && !res.Validation.Verdict {
			// A rejected outcome counts as a failure for scheduling:
			// dependents skip and the phase fails. The executed
			// result itself stays immutable.
			o.emitter.Emit(Event{
				Type: EventValidationRejected, SessionID: session.ID, Phase: ph.Name,
				TaskID: t.ID, Message: res.Validation.Explanation,
			})
			o.logger.Log("session %s: task %s rejected by validation (confidence %.2f)",
				session.ID, t.ID, res.Validation.Confidence)
			return o.failTask(session, ph, g, t.ID)
		}
		g.MarkComplete(t.ID)
		o.emitter.Emit(Event{
			Type: EventTaskSucceeded, SessionID: session.ID, Phase: ph.Name, TaskID: t.ID,
		})
		return nil
	}
}

// attachValidation runs the validator on a terminal result and persists the
// attached verdict. Validation never fails the persistence path; only
// storage errors escalate.
func (o *Orchestrator) attachValidation(ctx context.Context, session *models.Session, t *models.Task, res *models.TaskResult) error {
	if o.validator == nil {
		return nil
	}
	res.Validation = o.validator.Validate(ctx, res, t.Expectation)
	if err := o.store.SaveTaskResult(session.ID, res); err != nil {
		return err
	}
	upsertSessionResult(session, res)
	return nil
}

// failTask records a terminal failure in the scheduling graph and persists a
// skipped result for every transitively ruled-out dependent.
func (o *Orchestrator) failTask(session *models.Session, ph *models.Phase, g *graph.DependencyGraph, taskID string) error {
	for _, skippedID := range g.MarkFailed(taskID) {
		if r := session.Result(skippedID); r != nil && r.Terminal() {
			continue
		}
		res := &models.TaskResult{
			TaskID:      skippedID,
			Status:      models.TaskStatusSkipped,
			ErrorDetail: fmt.Sprintf("dependency %s did not succeed", taskID),
		}
		if err := o.store.SaveTaskResult(session.ID, res); err != nil {
			return err
		}
		upsertSessionResult(session, res)
		o.emitter.Emit(Event{
			Type: EventTaskSkipped, SessionID: session.ID, Phase: ph.Name,
			TaskID: skippedID, Message: res.ErrorDetail,
		})
	}
	return nil
}

// upsertSessionResult keeps the in-memory session mapping aligned with the
// store, preserving discovery order.
func upsertSessionResult(session *models.Session, res *models.TaskResult) {
	for i := range session.Results {
		if session.Results[i].TaskID == res.TaskID {
			session.Results[i] = *res
			return
		}
	}
	session.Results = append(session.Results, *res)
}
