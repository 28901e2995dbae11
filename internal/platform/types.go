package platform

import (
	"time"
)

// AttemptStatus is the server-side lifecycle of a quiz attempt. Transitions
// are monotonic: in_progress -> submitted -> graded, never backward.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusSubmitted  AttemptStatus = "submitted"
	StatusGraded     AttemptStatus = "graded"
)

func (s AttemptStatus) rank() int {
	switch s {
	case StatusInProgress:
		return 0
	case StatusSubmitted:
		return 1
	case StatusGraded:
		return 2
	}
	return -1
}

// Valid reports whether the status is one of the known wire values.
func (s AttemptStatus) Valid() bool {
	return s.rank() >= 0
}

// CanTransitionTo reports whether moving from s to next respects the
// monotonic attempt lifecycle. Same-status "transitions" are allowed so
// idempotent re-reads are not treated as violations.
func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() >= s.rank()
}

type Choice struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type Question struct {
	ID     int64    `json:"id"`
	Prompt string   `json:"prompt"`
	// Choices is empty for free-text questions.
	Choices []Choice `json:"choices,omitempty"`
}

// IsFreeText reports whether the question expects a typed answer instead of
// a choice selection.
func (q Question) IsFreeText() bool {
	return len(q.Choices) == 0
}

type Quiz struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// DurationSeconds is nil for untimed quizzes.
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	Questions       []Question `json:"questions"`
}

// TimeLimit returns the quiz duration and whether the quiz is timed.
func (q Quiz) TimeLimit() (time.Duration, bool) {
	if q.DurationSeconds == nil {
		return 0, false
	}
	return time.Duration(*q.DurationSeconds) * time.Second, true
}

// QuizSummary is the list-view shape returned by GET /quizzes/.
type QuizSummary struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	QuestionCount   int    `json:"question_count"`
	DurationSeconds *int64 `json:"duration_seconds,omitempty"`
}

type Attempt struct {
	ID     int64         `json:"id"`
	QuizID int64         `json:"quiz_id"`
	Status AttemptStatus `json:"status"`
	// StartedAt is server-recorded; the deadline is derived from it once and
	// never recomputed from local elapsed time.
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds *int64    `json:"duration_seconds,omitempty"`
	Score           *float64  `json:"score,omitempty"`
}

// Deadline returns the fixed point in time after which the attempt must be
// finalized, and whether the attempt is timed at all.
func (a Attempt) Deadline() (time.Time, bool) {
	if a.DurationSeconds == nil {
		return time.Time{}, false
	}
	return a.StartedAt.Add(time.Duration(*a.DurationSeconds) * time.Second), true
}

// AnswerPayload is the upsert body for POST /submissions/{id}/submit-answer/.
// Exactly one of SelectedChoiceID or TextAnswer is set.
type AnswerPayload struct {
	QuestionID       int64   `json:"question_id"`
	SelectedChoiceID *int64  `json:"selected_choice_id,omitempty"`
	TextAnswer       *string `json:"text_answer,omitempty"`
}

// SaveState tracks where a locally edited answer is in its round trip to the
// server.
type SaveState string

const (
	SaveClean   SaveState = "clean"
	SavePending SaveState = "pending"
	SaveSaving  SaveState = "saving"
	SaveError   SaveState = "error"
)
