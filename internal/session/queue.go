package session

import (
	"context"
	"log/slog"
	"sync"

	"quiz-client/internal/platform"
)

type saveFunc func(ctx context.Context, answer platform.AnswerPayload) error

type queuedAnswer struct {
	payload platform.AnswerPayload
	// seq is bumped on every edit; a save result is only applied if the seq
	// it was issued under is still the latest, so a slow in-flight save can
	// never overwrite a later edit.
	seq     uint64
	state   platform.SaveState
	flushed bool
}

// answerQueue serializes answer upserts for one attempt through a single
// worker. Per-question save state is tracked so one question's failure stays
// local to that question.
type answerQueue struct {
	save    saveFunc
	onState func(questionID int64, state platform.SaveState)
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	answers map[int64]*queuedAnswer
	order   []int64
	nextSeq uint64
	closed  bool
	waiters []chan struct{}
	wake    chan struct{}
	done    chan struct{}
}

func newAnswerQueue(parent context.Context, save saveFunc, onState func(int64, platform.SaveState), logger *slog.Logger) *answerQueue {
	ctx, cancel := context.WithCancel(parent)
	q := &answerQueue{
		save:    save,
		onState: onState,
		log:     logger,
		ctx:     ctx,
		cancel:  cancel,
		answers: make(map[int64]*queuedAnswer),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Stage records the latest edited value for a question and marks it dirty.
// Nothing is sent until Flush; repeated stages within one debounce window
// collapse into the single latest value.
func (q *answerQueue) Stage(questionID int64, payload platform.AnswerPayload) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	a := q.answers[questionID]
	if a == nil {
		a = &queuedAnswer{}
		q.answers[questionID] = a
	}
	q.nextSeq++
	a.payload = payload
	a.seq = q.nextSeq

	var emit func(int64, platform.SaveState)
	if a.state != platform.SaveSaving && a.state != platform.SavePending {
		a.state = platform.SavePending
		emit = q.onState
	}
	q.mu.Unlock()

	if emit != nil {
		emit(questionID, platform.SavePending)
	}
}

// Flush makes a staged question eligible for the worker. A question whose
// last save errored becomes eligible again.
func (q *answerQueue) Flush(questionID int64) {
	q.mu.Lock()
	a := q.answers[questionID]
	if q.closed || a == nil {
		q.mu.Unlock()
		return
	}

	var emit func(int64, platform.SaveState)
	if a.state == platform.SaveError {
		a.state = platform.SavePending
		emit = q.onState
	}
	if a.state == platform.SavePending && !a.flushed {
		a.flushed = true
		q.order = append(q.order, questionID)
	}
	q.mu.Unlock()

	if emit != nil {
		emit(questionID, platform.SavePending)
	}
	q.signal()
}

// FlushAll flushes every dirty question, including errored ones.
func (q *answerQueue) FlushAll() {
	q.mu.Lock()
	ids := make([]int64, 0, len(q.answers))
	for id, a := range q.answers {
		if a.state == platform.SavePending || a.state == platform.SaveError {
			ids = append(ids, id)
		}
	}
	q.mu.Unlock()

	for _, id := range ids {
		q.Flush(id)
	}
}

// Drain blocks until every flushed save has completed (clean or error) or
// the context is cancelled.
func (q *answerQueue) Drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.quiescentLocked() {
			q.mu.Unlock()
			return nil
		}
		wait := make(chan struct{})
		q.waiters = append(q.waiters, wait)
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return nil
		}
	}
}

// SaveStates returns a copy of the per-question save states.
func (q *answerQueue) SaveStates() map[int64]platform.SaveState {
	q.mu.Lock()
	defer q.mu.Unlock()
	states := make(map[int64]platform.SaveState, len(q.answers))
	for id, a := range q.answers {
		states[id] = a.state
	}
	return states
}

// Close stops the worker and aborts any in-flight save.
func (q *answerQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.notifyWaitersLocked()
	q.mu.Unlock()

	q.cancel()
	q.signal()
	<-q.done
}

func (q *answerQueue) run() {
	defer close(q.done)

	for {
		questionID, payload, seq, ok := q.next()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-q.ctx.Done():
				return
			}
		}

		err := q.save(q.ctx, payload)
		q.complete(questionID, seq, err)
	}
}

func (q *answerQueue) next() (int64, platform.AnswerPayload, uint64, bool) {
	q.mu.Lock()
	for len(q.order) > 0 {
		questionID := q.order[0]
		q.order = q.order[1:]
		a := q.answers[questionID]
		if a == nil || a.state != platform.SavePending {
			continue
		}
		a.state = platform.SaveSaving
		payload, seq := a.payload, a.seq
		q.mu.Unlock()

		if q.onState != nil {
			q.onState(questionID, platform.SaveSaving)
		}
		return questionID, payload, seq, true
	}
	q.mu.Unlock()
	return 0, platform.AnswerPayload{}, 0, false
}

func (q *answerQueue) complete(questionID int64, seq uint64, err error) {
	q.mu.Lock()
	if q.closed {
		// Disposed mid-flight; the result is discarded.
		q.mu.Unlock()
		return
	}

	a := q.answers[questionID]
	if a == nil {
		q.mu.Unlock()
		return
	}

	stale := a.seq != seq
	var state platform.SaveState
	switch {
	case stale:
		// A newer edit was staged while this save was in flight. The stale
		// result is discarded and the latest value is re-queued.
		state = platform.SavePending
		a.state = state
		a.flushed = true
		q.order = append(q.order, questionID)
	case err != nil:
		state = platform.SaveError
		a.state = state
		a.flushed = false
	default:
		state = platform.SaveClean
		a.state = state
		a.flushed = false
	}
	q.notifyWaitersLocked()
	q.mu.Unlock()

	if err != nil && !stale && q.log != nil {
		q.log.Warn("answer save failed", "question_id", questionID, "error", err)
	}
	if q.onState != nil {
		q.onState(questionID, state)
	}
	q.signal()
}

func (q *answerQueue) quiescentLocked() bool {
	for _, a := range q.answers {
		if a.state == platform.SavePending || a.state == platform.SaveSaving {
			return false
		}
	}
	return true
}

func (q *answerQueue) notifyWaitersLocked() {
	if !q.quiescentLocked() && !q.closed {
		return
	}
	for _, w := range q.waiters {
		close(w)
	}
	q.waiters = nil
}

func (q *answerQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
