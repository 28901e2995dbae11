package studentserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiz-client/internal/api"
	"quiz-client/internal/credentials"
	"quiz-client/internal/platform"
)

// The suite drives the stub through the real API client, so the wire shapes
// on both sides are checked against each other.

type fixture struct {
	server *Server
	http   *httptest.Server
	client *api.Client
	store  credentials.Store
	quizID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	server := New(Config{})
	server.AddUser("student", "secret")

	limit := int64(300)
	quizID := server.AddQuiz(platform.Quiz{
		Title:           "Fixtures",
		DurationSeconds: &limit,
		Questions: []platform.Question{
			{ID: 1, Prompt: "pick", Choices: []platform.Choice{{ID: 10, Text: "right"}, {ID: 11, Text: "wrong"}}},
			{ID: 2, Prompt: "pick again", Choices: []platform.Choice{{ID: 20, Text: "right"}, {ID: 21, Text: "wrong"}}},
			{ID: 3, Prompt: "free text"},
		},
	}, map[int64]int64{1: 10, 2: 20})

	httpServer := httptest.NewServer(server.Router())
	t.Cleanup(httpServer.Close)

	store := credentials.NewMemoryStore()
	client := api.New(httpServer.URL, &http.Client{Timeout: 5 * time.Second}, store, nil)
	return &fixture{server: server, http: httpServer, client: client, store: store, quizID: quizID}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.client.Login(context.Background(), "student", "secret"))
}

func choicePtr(v int64) *int64 { return &v }

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newFixture(t)

	err := f.client.Login(context.Background(), "student", "nope")
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestListAndGetQuiz(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	summaries, err := f.client.ListQuizzes(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, f.quizID, summaries[0].ID)
	require.Equal(t, 3, summaries[0].QuestionCount)

	quiz, err := f.client.GetQuiz(ctx, f.quizID)
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 3)
	require.True(t, quiz.Questions[2].IsFreeText())

	limit, timed := quiz.TimeLimit()
	require.True(t, timed)
	require.Equal(t, 5*time.Minute, limit)
}

func TestStartSubmissionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	first, err := f.client.StartSubmission(ctx, f.quizID)
	require.NoError(t, err)
	require.Equal(t, platform.StatusInProgress, first.Status)
	require.NotNil(t, first.DurationSeconds)

	second, err := f.client.StartSubmission(ctx, f.quizID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "repeated start must resume, not duplicate")
	require.Equal(t, first.StartedAt, second.StartedAt)
}

func TestSubmitAnswerUpsertsLatestValue(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	attempt, err := f.client.StartSubmission(ctx, f.quizID)
	require.NoError(t, err)

	require.NoError(t, f.client.SubmitAnswer(ctx, attempt.ID,
		platform.AnswerPayload{QuestionID: 1, SelectedChoiceID: choicePtr(11)}))
	require.NoError(t, f.client.SubmitAnswer(ctx, attempt.ID,
		platform.AnswerPayload{QuestionID: 1, SelectedChoiceID: choicePtr(10)}))

	stored, ok := f.server.Answer(attempt.ID, 1)
	require.True(t, ok)
	require.Equal(t, int64(10), *stored.SelectedChoiceID)
	require.Equal(t, 2, f.server.AnswerCalls(1))
}

func TestSubmitAnswerValidation(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	attempt, err := f.client.StartSubmission(ctx, f.quizID)
	require.NoError(t, err)

	var apiErr *api.APIError

	err = f.client.SubmitAnswer(ctx, attempt.ID,
		platform.AnswerPayload{QuestionID: 99, SelectedChoiceID: choicePtr(10)})
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	err = f.client.SubmitAnswer(ctx, attempt.ID,
		platform.AnswerPayload{QuestionID: 1, SelectedChoiceID: choicePtr(999)})
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestFinalizeSealsAttempt(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	attempt, err := f.client.StartSubmission(ctx, f.quizID)
	require.NoError(t, err)

	finalized, err := f.client.Finalize(ctx, attempt.ID)
	require.NoError(t, err)
	require.Equal(t, platform.StatusSubmitted, finalized.Status)

	// Repeated finalize is a no-op returning the sealed attempt.
	again, err := f.client.Finalize(ctx, attempt.ID)
	require.NoError(t, err)
	require.Equal(t, platform.StatusSubmitted, again.Status)
	require.Equal(t, 2, f.server.FinalizeCalls())

	// Answers after sealing are rejected with a conflict.
	err = f.client.SubmitAnswer(ctx, attempt.ID,
		platform.AnswerPayload{QuestionID: 1, SelectedChoiceID: choicePtr(10)})
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestFailNextFinalizeReturnsServerError(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	attempt, err := f.client.StartSubmission(ctx, f.quizID)
	require.NoError(t, err)

	f.server.FailNextFinalize(1)

	_, err = f.client.Finalize(ctx, attempt.ID)
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	// The failure did not seal the attempt; the retry succeeds.
	finalized, err := f.client.Finalize(ctx, attempt.ID)
	require.NoError(t, err)
	require.Equal(t, platform.StatusSubmitted, finalized.Status)
}

func TestGradeScoresChoiceAnswers(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	attempt, err := f.client.StartSubmission(ctx, f.quizID)
	require.NoError(t, err)

	// One correct, one wrong; the free-text question is not auto-graded.
	require.NoError(t, f.client.SubmitAnswer(ctx, attempt.ID,
		platform.AnswerPayload{QuestionID: 1, SelectedChoiceID: choicePtr(10)}))
	require.NoError(t, f.client.SubmitAnswer(ctx, attempt.ID,
		platform.AnswerPayload{QuestionID: 2, SelectedChoiceID: choicePtr(21)}))

	require.False(t, f.server.Grade(attempt.ID), "in-progress attempt cannot be graded")

	_, err = f.client.Finalize(ctx, attempt.ID)
	require.NoError(t, err)
	require.True(t, f.server.Grade(attempt.ID))

	graded, err := f.client.GetSubmission(ctx, attempt.ID)
	require.NoError(t, err)
	require.Equal(t, platform.StatusGraded, graded.Status)
	require.NotNil(t, graded.Score)
	require.Equal(t, 1.0, *graded.Score)
}

func TestExpiredAccessTokenIsRenewedTransparently(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	f.server.InvalidateAccessTokens()

	_, err := f.client.ListQuizzes(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, f.server.RefreshCalls())
}

func TestRevokedRefreshTokenEndsSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	f.server.InvalidateAccessTokens()
	f.server.RevokeRefreshTokens()

	_, err := f.client.ListQuizzes(ctx)
	require.ErrorIs(t, err, api.ErrSessionExpired)

	_, err = f.store.Load(ctx)
	require.ErrorIs(t, err, credentials.ErrNoCredentials)
}

func TestSubmissionOwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser("other", "secret2")
	ctx := context.Background()

	f.login(t)
	attempt, err := f.client.StartSubmission(ctx, f.quizID)
	require.NoError(t, err)

	otherStore := credentials.NewMemoryStore()
	otherClient := api.New(f.http.URL, &http.Client{Timeout: 5 * time.Second}, otherStore, nil)
	require.NoError(t, otherClient.Login(ctx, "other", "secret2"))

	_, err = otherClient.GetSubmission(ctx, attempt.ID)
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}
