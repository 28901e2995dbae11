// Package studentserver is an in-process stand-in for the course-and-quiz
// platform API. It implements the endpoints the client consumes and is used
// by the test suite and the dev server binary; it is not a production
// backend.
package studentserver

import (
	"sync"
	"time"

	"quiz-client/internal/platform"
)

type Config struct {
	// Secret signs access tokens (HS256).
	Secret []byte
	// AccessTTL bounds access token validity. Defaults to 15 minutes.
	AccessTTL time.Duration
	Clock     func() time.Time
}

type storedQuiz struct {
	quiz platform.Quiz
	// answerKey maps question ID to the correct choice ID. Free-text
	// questions have no entry and are not auto-graded.
	answerKey map[int64]int64
}

type storedAttempt struct {
	attempt  platform.Attempt
	username string
	answers  map[int64]platform.AnswerPayload
}

type Server struct {
	cfg Config

	mu            sync.Mutex
	users         map[string]string
	refreshTokens map[string]string
	quizzes       map[int64]*storedQuiz
	attempts      map[int64]*storedAttempt
	nextID        int64
	// Access tokens from generations below minGeneration are rejected; lets
	// tests force an expiry without clock manipulation.
	minGeneration int64

	refreshCalls  int
	finalizeCalls int
	answerCalls   map[int64]int
	failFinalize  int
}

func New(cfg Config) *Server {
	if len(cfg.Secret) == 0 {
		cfg.Secret = []byte("studentserver-dev-secret")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Server{
		cfg:           cfg,
		users:         make(map[string]string),
		refreshTokens: make(map[string]string),
		quizzes:       make(map[int64]*storedQuiz),
		attempts:      make(map[int64]*storedAttempt),
		answerCalls:   make(map[int64]int),
	}
}

// AddUser registers a username/password for POST /token/.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// AddQuiz stores a quiz and its grading key, assigning IDs where missing.
// Returns the quiz ID.
func (s *Server) AddQuiz(quiz platform.Quiz, answerKey map[int64]int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quiz.ID == 0 {
		quiz.ID = s.nextIDLocked()
	}
	if answerKey == nil {
		answerKey = make(map[int64]int64)
	}
	s.quizzes[quiz.ID] = &storedQuiz{quiz: quiz, answerKey: answerKey}
	return quiz.ID
}

// Grade scores a submitted attempt against the quiz answer key and marks it
// graded. Returns false if the attempt is unknown or not yet submitted.
func (s *Server) Grade(attemptID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.attempts[attemptID]
	if !ok || stored.attempt.Status != platform.StatusSubmitted {
		return false
	}

	quiz := s.quizzes[stored.attempt.QuizID]
	score := 0.0
	for questionID, correctChoice := range quiz.answerKey {
		answer, answered := stored.answers[questionID]
		if answered && answer.SelectedChoiceID != nil && *answer.SelectedChoiceID == correctChoice {
			score++
		}
	}
	stored.attempt.Status = platform.StatusGraded
	stored.attempt.Score = &score
	return true
}

// InvalidateAccessTokens makes every previously issued access token fail
// verification, simulating expiry. Tokens issued afterwards stay valid.
func (s *Server) InvalidateAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minGeneration++
}

// RevokeRefreshTokens invalidates all refresh tokens so the next renewal
// fails like a dead session would.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]string)
}

// FailNextFinalize makes the next n finalize calls return HTTP 500.
func (s *Server) FailNextFinalize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFinalize = n
}

func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func (s *Server) FinalizeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizeCalls
}

func (s *Server) AnswerCalls(questionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answerCalls[questionID]
}

// Answer returns the currently stored answer for a question of an attempt.
func (s *Server) Answer(attemptID, questionID int64) (platform.AnswerPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.attempts[attemptID]
	if !ok {
		return platform.AnswerPayload{}, false
	}
	answer, ok := stored.answers[questionID]
	return answer, ok
}

func (s *Server) nextIDLocked() int64 {
	s.nextID++
	return s.nextID
}
