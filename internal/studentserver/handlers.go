package studentserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"quiz-client/internal/platform"
)

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/token/", s.handleToken).Methods(http.MethodPost)
	r.HandleFunc("/token/refresh/", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/quizzes/", s.requireAuth(s.handleListQuizzes)).Methods(http.MethodGet)
	r.HandleFunc("/quizzes/{id}/", s.requireAuth(s.handleGetQuiz)).Methods(http.MethodGet)
	r.HandleFunc("/quizzes/{id}/start-submission/", s.requireAuth(s.handleStartSubmission)).Methods(http.MethodPost)
	r.HandleFunc("/submissions/{id}/", s.requireAuth(s.handleGetSubmission)).Methods(http.MethodGet)
	r.HandleFunc("/submissions/{id}/submit-answer/", s.requireAuth(s.handleSubmitAnswer)).Methods(http.MethodPost)
	r.HandleFunc("/submissions/{id}/finalize/", s.requireAuth(s.handleFinalize)).Methods(http.MethodPost)

	return r
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	s.mu.Lock()
	password, exists := s.users[body.Username]
	if !exists || password != body.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid username or password"})
		return
	}
	refresh := uuid.NewString()
	s.refreshTokens[refresh] = body.Username
	s.mu.Unlock()

	access, err := s.issueAccessToken(body.Username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "token signing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access": access, "refresh": refresh})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	s.mu.Lock()
	s.refreshCalls++
	username, valid := s.refreshTokens[body.Refresh]
	s.mu.Unlock()

	if !valid {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "refresh token invalid"})
		return
	}

	access, err := s.issueAccessToken(username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "token signing failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleListQuizzes(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	summaries := make([]platform.QuizSummary, 0, len(s.quizzes))
	for _, stored := range s.quizzes {
		summaries = append(summaries, platform.QuizSummary{
			ID:              stored.quiz.ID,
			Title:           stored.quiz.Title,
			QuestionCount:   len(stored.quiz.Questions),
			DurationSeconds: stored.quiz.DurationSeconds,
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"quizzes": summaries})
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	stored, exists := s.quizzes[quizID]
	s.mu.Unlock()
	if !exists {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "quiz not found"})
		return
	}

	writeJSON(w, http.StatusOK, stored.quiz)
}

func (s *Server) handleStartSubmission(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r)
	if !ok {
		return
	}
	username := requestUsername(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.quizzes[quizID]
	if !exists {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "quiz not found"})
		return
	}

	// Idempotent: an existing in-progress attempt for this user is resumed
	// instead of creating a second one.
	for _, attempt := range s.attempts {
		if attempt.username == username && attempt.attempt.QuizID == quizID &&
			attempt.attempt.Status == platform.StatusInProgress {
			writeJSON(w, http.StatusOK, attempt.attempt)
			return
		}
	}

	attempt := &storedAttempt{
		attempt: platform.Attempt{
			ID:              s.nextIDLocked(),
			QuizID:          quizID,
			Status:          platform.StatusInProgress,
			StartedAt:       s.cfg.Clock().UTC(),
			DurationSeconds: stored.quiz.DurationSeconds,
		},
		username: username,
		answers:  make(map[int64]platform.AnswerPayload),
	}
	s.attempts[attempt.attempt.ID] = attempt

	writeJSON(w, http.StatusCreated, attempt.attempt)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	attempt, ok := s.ownedAttempt(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	payload := attempt.attempt
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	attempt, ok := s.ownedAttempt(w, r)
	if !ok {
		return
	}

	var answer platform.AnswerPayload
	if err := json.NewDecoder(r.Body).Decode(&answer); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.answerCalls[answer.QuestionID]++

	if attempt.attempt.Status != platform.StatusInProgress {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "submission is no longer editable"})
		return
	}

	quiz := s.quizzes[attempt.attempt.QuizID]
	question, found := findQuestion(quiz.quiz, answer.QuestionID)
	if !found {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question does not belong to this quiz"})
		return
	}
	if answer.SelectedChoiceID == nil && answer.TextAnswer == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "answer must carry a choice or text"})
		return
	}
	if answer.SelectedChoiceID != nil && !hasChoice(question, *answer.SelectedChoiceID) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "choice does not belong to this question"})
		return
	}

	// Upsert: repeated saves for the same question replace the stored value.
	attempt.answers[answer.QuestionID] = answer
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	attempt, ok := s.ownedAttempt(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.finalizeCalls++
	if s.failFinalize > 0 {
		s.failFinalize--
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "finalize temporarily unavailable"})
		return
	}

	// Finalizing an already-submitted attempt is a no-op returning the
	// current state.
	if attempt.attempt.Status == platform.StatusInProgress {
		attempt.attempt.Status = platform.StatusSubmitted
	}
	writeJSON(w, http.StatusOK, attempt.attempt)
}

func (s *Server) ownedAttempt(w http.ResponseWriter, r *http.Request) (*storedAttempt, bool) {
	attemptID, ok := pathID(w, r)
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	attempt, exists := s.attempts[attemptID]
	s.mu.Unlock()

	if !exists {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "submission not found"})
		return nil, false
	}
	if attempt.username != requestUsername(r) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "submission belongs to another user"})
		return nil, false
	}
	return attempt, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func findQuestion(quiz platform.Quiz, questionID int64) (platform.Question, bool) {
	for _, q := range quiz.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return platform.Question{}, false
}

func hasChoice(question platform.Question, choiceID int64) bool {
	for _, c := range question.Choices {
		if c.ID == choiceID {
			return true
		}
	}
	return false
}
