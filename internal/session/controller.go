package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quiz-client/internal/platform"
)

// State is the controller-side lifecycle of an attempt session. It moves
// loading -> in_progress -> submitting -> {submitted | error}; submitted may
// later carry a graded attempt after a server re-read.
type State string

const (
	StateLoading    State = "loading"
	StateInProgress State = "in_progress"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
	StateError      State = "error"
)

// FinalizeTrigger says what forced the transition out of in_progress.
type FinalizeTrigger string

const (
	TriggerManual   FinalizeTrigger = "manual"
	TriggerDeadline FinalizeTrigger = "deadline"
)

var (
	ErrClosed            = errors.New("session is closed")
	ErrNotActive         = errors.New("attempt is not active")
	ErrFinalizeInFlight  = errors.New("finalize already in progress")
	ErrAttemptNotStarted = errors.New("attempt has not been started")
)

// PlatformClient is the slice of the API client the session needs.
type PlatformClient interface {
	GetQuiz(ctx context.Context, quizID int64) (platform.Quiz, error)
	StartSubmission(ctx context.Context, quizID int64) (platform.Attempt, error)
	SubmitAnswer(ctx context.Context, submissionID int64, answer platform.AnswerPayload) error
	Finalize(ctx context.Context, submissionID int64) (platform.Attempt, error)
	GetSubmission(ctx context.Context, submissionID int64) (platform.Attempt, error)
}

// Events are UI notification hooks. All callbacks are invoked without
// internal locks held and must not block for long.
type Events struct {
	StateChanged     func(state State)
	SaveStateChanged func(questionID int64, state platform.SaveState)
	Tick             func(remaining time.Duration)
	Finalized        func(attempt platform.Attempt)
	// FinalizeFailed distinguishes the retryable manual case from the
	// blocking deadline-triggered case.
	FinalizeFailed func(err error, trigger FinalizeTrigger)
}

type Config struct {
	Client PlatformClient
	QuizID int64
	// Debounce is the quiet interval before a staged edit is flushed.
	Debounce time.Duration
	// TickInterval is exposed for tests; production uses the 1s default.
	TickInterval time.Duration
	// FinalizeRetryInterval paces automatic retries of a failed
	// deadline-triggered finalize.
	FinalizeRetryInterval time.Duration
	Clock                 func() time.Time
	Logger                *slog.Logger
}

const (
	defaultDebounce              = 1500 * time.Millisecond
	defaultFinalizeRetryInterval = 5 * time.Second
	drainTimeout                 = 10 * time.Second
)

// Controller owns one quiz attempt's state machine: it drives the deadline
// timer, routes edits through the persistence queue, and performs the
// exactly-once finalize.
type Controller struct {
	cfg    Config
	events Events
	log    *slog.Logger

	lifecycle context.Context
	cancel    context.CancelFunc

	mu         sync.Mutex
	state      State
	quiz       platform.Quiz
	attempt    platform.Attempt
	answers    map[int64]platform.AnswerPayload
	questions  map[int64]platform.Question
	queue      *answerQueue
	timer      *DeadlineTimer
	debounce   map[int64]*time.Timer
	finalizing bool
	closed     bool
}

func New(cfg Config, events Events) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.FinalizeRetryInterval <= 0 {
		cfg.FinalizeRetryInterval = defaultFinalizeRetryInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	lifecycle, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:       cfg,
		events:    events,
		log:       cfg.Logger,
		lifecycle: lifecycle,
		cancel:    cancel,
		state:     StateLoading,
		answers:   make(map[int64]platform.AnswerPayload),
		questions: make(map[int64]platform.Question),
		debounce:  make(map[int64]*time.Timer),
	}
}

// Start fetches the quiz, starts or resumes the attempt, and arms the
// deadline timer. A resumed attempt that is already submitted or graded
// lands directly in the terminal read-only state. A resumed attempt whose
// deadline has already passed is finalized immediately, without waiting for
// a tick.
func (c *Controller) Start(ctx context.Context) error {
	quiz, err := c.cfg.Client.GetQuiz(ctx, c.cfg.QuizID)
	if err != nil {
		c.setState(StateError)
		return fmt.Errorf("loading quiz %d: %w", c.cfg.QuizID, err)
	}

	attempt, err := c.cfg.Client.StartSubmission(ctx, c.cfg.QuizID)
	if err != nil {
		c.setState(StateError)
		return fmt.Errorf("starting attempt for quiz %d: %w", c.cfg.QuizID, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.quiz = quiz
	c.attempt = attempt
	for _, q := range quiz.Questions {
		c.questions[q.ID] = q
	}

	if attempt.Status != platform.StatusInProgress {
		c.state = StateSubmitted
		c.mu.Unlock()
		c.emitState(StateSubmitted)
		c.log.Info("attempt already closed, read-only view",
			"attempt_id", attempt.ID, "status", attempt.Status)
		return nil
	}

	c.queue = newAnswerQueue(c.lifecycle, c.saveAnswer, c.emitSaveState, c.log)
	c.state = StateInProgress

	deadline, timed := attempt.Deadline()
	var overdue bool
	if timed {
		if remaining := deadline.Sub(c.cfg.Clock()); remaining <= 0 {
			overdue = true
		} else {
			c.timer = NewDeadlineTimer(deadline, c.cfg.TickInterval, c.cfg.Clock)
		}
	}
	timer := c.timer
	c.mu.Unlock()

	c.emitState(StateInProgress)

	if overdue {
		c.log.Info("attempt deadline already elapsed on resume", "attempt_id", attempt.ID)
		c.handleDeadline()
		return nil
	}
	if timer != nil {
		timer.Start(c.emitTick, c.handleDeadline)
	}
	return nil
}

// SelectChoice records a choice answer for a question. Outside in_progress
// it is a no-op, not an error.
func (c *Controller) SelectChoice(questionID, choiceID int64) {
	id := choiceID
	c.edit(questionID, platform.AnswerPayload{QuestionID: questionID, SelectedChoiceID: &id})
}

// AnswerText records a free-text answer for a question.
func (c *Controller) AnswerText(questionID int64, text string) {
	c.edit(questionID, platform.AnswerPayload{QuestionID: questionID, TextAnswer: &text})
}

func (c *Controller) edit(questionID int64, payload platform.AnswerPayload) {
	c.mu.Lock()
	if c.closed || c.state != StateInProgress {
		c.mu.Unlock()
		return
	}
	if _, known := c.questions[questionID]; !known {
		c.mu.Unlock()
		c.log.Warn("edit for unknown question ignored", "question_id", questionID)
		return
	}

	c.answers[questionID] = payload
	c.queue.Stage(questionID, payload)

	// Each question debounces independently, so rapid edits to one question
	// collapse into a single upsert without delaying other questions.
	if t := c.debounce[questionID]; t != nil {
		t.Stop()
	}
	c.debounce[questionID] = time.AfterFunc(c.cfg.Debounce, func() {
		c.flushQuestion(questionID)
	})
	c.mu.Unlock()
}

func (c *Controller) flushQuestion(questionID int64) {
	c.mu.Lock()
	if c.closed || c.state != StateInProgress {
		c.mu.Unlock()
		return
	}
	queue := c.queue
	c.mu.Unlock()

	queue.Flush(questionID)
}

// RetryFailedSaves re-queues every answer whose last save errored.
func (c *Controller) RetryFailedSaves() {
	c.mu.Lock()
	queue := c.queue
	active := !c.closed && c.state == StateInProgress
	c.mu.Unlock()

	if active && queue != nil {
		queue.FlushAll()
	}
}

// Finalize is the manual submit path. The transition out of in_progress is
// guarded: if the deadline trigger (or another manual call) already won, the
// duplicate is rejected without side effects. After a failed manual
// finalize the session stays in submitting and Finalize may be called again;
// edits remain disabled throughout.
func (c *Controller) Finalize(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateInProgress:
		c.enterSubmittingLocked()
	case StateSubmitting:
		if c.finalizing {
			c.mu.Unlock()
			return ErrFinalizeInFlight
		}
		c.finalizing = true
	case StateSubmitted:
		// Repeated finalize after success is a no-op.
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		return ErrNotActive
	}
	c.mu.Unlock()

	c.emitState(StateSubmitting)
	return c.doFinalize(ctx, TriggerManual)
}

// handleDeadline is the deadline-triggered finalize path. It fires from the
// timer (or directly on an overdue resume) and keeps retrying on failure:
// edits are already disabled, so the failure cannot be downgraded to a
// dismissible local error.
func (c *Controller) handleDeadline() {
	c.mu.Lock()
	if c.closed || c.state != StateInProgress {
		// A manual finalize already won the race; ignore the second trigger.
		c.mu.Unlock()
		return
	}
	c.enterSubmittingLocked()
	c.mu.Unlock()

	c.emitState(StateSubmitting)
	c.log.Info("deadline reached, finalizing attempt", "attempt_id", c.AttemptID())

	for {
		err := c.doFinalize(c.lifecycle, TriggerDeadline)
		if err == nil {
			return
		}

		select {
		case <-time.After(c.cfg.FinalizeRetryInterval):
		case <-c.lifecycle.Done():
			return
		}

		c.mu.Lock()
		if c.closed || c.state != StateSubmitting {
			c.mu.Unlock()
			return
		}
		c.finalizing = true
		c.mu.Unlock()
	}
}

// enterSubmittingLocked performs the one-way transition out of in_progress:
// edits become no-ops, pending debounces are cancelled, and the timer stops.
func (c *Controller) enterSubmittingLocked() {
	c.state = StateSubmitting
	c.finalizing = true
	for id, t := range c.debounce {
		t.Stop()
		delete(c.debounce, id)
	}
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Controller) doFinalize(ctx context.Context, trigger FinalizeTrigger) error {
	c.mu.Lock()
	queue := c.queue
	attemptID := c.attempt.ID
	c.mu.Unlock()

	// Push every already-made edit out before the attempt is sealed. This is
	// best-effort: a save stuck in error must not block finalize forever.
	if queue != nil {
		queue.FlushAll()
		drainCtx, cancelDrain := context.WithTimeout(ctx, drainTimeout)
		if err := queue.Drain(drainCtx); err != nil {
			c.log.Warn("answer drain incomplete before finalize", "error", err)
		}
		cancelDrain()
	}

	attempt, err := c.cfg.Client.Finalize(ctx, attemptID)
	if err != nil {
		c.mu.Lock()
		c.finalizing = false
		c.mu.Unlock()
		c.log.Warn("finalize failed", "attempt_id", attemptID, "trigger", trigger, "error", err)
		if c.events.FinalizeFailed != nil {
			c.events.FinalizeFailed(err, trigger)
		}
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.finalizing = false
	if !c.attempt.Status.CanTransitionTo(attempt.Status) {
		c.mu.Unlock()
		return fmt.Errorf("server returned status %q after finalize of %q attempt",
			attempt.Status, c.attempt.Status)
	}
	c.attempt = attempt
	c.state = StateSubmitted
	c.mu.Unlock()

	c.emitState(StateSubmitted)
	if c.events.Finalized != nil {
		c.events.Finalized(attempt)
	}
	c.log.Info("attempt finalized", "attempt_id", attempt.ID, "trigger", trigger, "status", attempt.Status)
	return nil
}

// RefreshAttempt re-reads the attempt from the server, picking up a graded
// annotation. Backward status movement is never applied.
func (c *Controller) RefreshAttempt(ctx context.Context) (platform.Attempt, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return platform.Attempt{}, ErrClosed
	}
	if c.attempt.ID == 0 {
		c.mu.Unlock()
		return platform.Attempt{}, ErrAttemptNotStarted
	}
	attemptID := c.attempt.ID
	c.mu.Unlock()

	attempt, err := c.cfg.Client.GetSubmission(ctx, attemptID)
	if err != nil {
		return platform.Attempt{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return platform.Attempt{}, ErrClosed
	}
	if c.attempt.Status.CanTransitionTo(attempt.Status) {
		c.attempt = attempt
	} else {
		c.log.Warn("ignoring backward attempt status from server",
			"have", c.attempt.Status, "got", attempt.Status)
	}
	return c.attempt, nil
}

// Close disposes the session: the timer and pending debounces are cancelled
// immediately, and results of in-flight calls are discarded instead of being
// applied. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, t := range c.debounce {
		t.Stop()
		delete(c.debounce, id)
	}
	timer := c.timer
	queue := c.queue
	c.mu.Unlock()

	c.cancel()
	if timer != nil {
		timer.Stop()
	}
	if queue != nil {
		queue.Close()
	}
}

func (c *Controller) saveAnswer(ctx context.Context, answer platform.AnswerPayload) error {
	c.mu.Lock()
	attemptID := c.attempt.ID
	c.mu.Unlock()
	return c.cfg.Client.SubmitAnswer(ctx, attemptID, answer)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Quiz() platform.Quiz {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quiz
}

func (c *Controller) Attempt() platform.Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

func (c *Controller) AttemptID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt.ID
}

// Remaining reports time left until the deadline, or false for untimed
// attempts.
func (c *Controller) Remaining() (time.Duration, bool) {
	c.mu.Lock()
	attempt := c.attempt
	c.mu.Unlock()

	deadline, timed := attempt.Deadline()
	if !timed {
		return 0, false
	}
	remaining := deadline.Sub(c.cfg.Clock())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Answers returns a copy of the locally recorded answer values.
func (c *Controller) Answers() map[int64]platform.AnswerPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	answers := make(map[int64]platform.AnswerPayload, len(c.answers))
	for id, a := range c.answers {
		answers[id] = a
	}
	return answers
}

// SaveStates returns the per-question save states.
func (c *Controller) SaveStates() map[int64]platform.SaveState {
	c.mu.Lock()
	queue := c.queue
	c.mu.Unlock()
	if queue == nil {
		return nil
	}
	return queue.SaveStates()
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()
	c.emitState(state)
}

func (c *Controller) emitState(state State) {
	if c.events.StateChanged != nil {
		c.events.StateChanged(state)
	}
}

func (c *Controller) emitSaveState(questionID int64, state platform.SaveState) {
	if c.events.SaveStateChanged != nil {
		c.events.SaveStateChanged(questionID, state)
	}
}

func (c *Controller) emitTick(remaining time.Duration) {
	if c.events.Tick != nil {
		c.events.Tick(remaining)
	}
}
