package session_test

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
	"quiz-client/internal/session"
	"quiz-client/internal/studentserver"
)

// Full-stack flow: real HTTP client against the platform stub, driven by the
// session controller the way the interactive client drives it.
func TestSessionAgainstPlatformStub(t *testing.T) {
	server := studentserver.New(studentserver.Config{})
	server.AddUser("student", "secret")

	limit := int64(300)
	quizID := server.AddQuiz(platform.Quiz{
		Title:           "End to end",
		DurationSeconds: &limit,
		Questions: []platform.Question{
			{ID: 1, Prompt: "pick", Choices: []platform.Choice{{ID: 10, Text: "right"}, {ID: 11, Text: "wrong"}}},
			{ID: 2, Prompt: "explain"},
		},
	}, map[int64]int64{1: 10})

	httpServer := httptest.NewServer(server.Router())
	defer httpServer.Close()

	client := api.New(httpServer.URL, &http.Client{Timeout: 5 * time.Second},
		credentials.NewMemoryStore(), nil)

	ctx := context.Background()
	require.NoError(t, client.Login(ctx, "student", "secret"))

	c := session.New(session.Config{
		Client:       client,
		QuizID:       quizID,
		Debounce:     20 * time.Millisecond,
		TickInterval: time.Hour,
	}, session.Events{})
	defer c.Close()

	require.NoError(t, c.Start(ctx))
	require.Equal(t, session.StateInProgress, c.State())

	remaining, timed := c.Remaining()
	require.True(t, timed)
	require.Greater(t, remaining, 4*time.Minute)

	// Rapid reselection collapses into one wire call with the last value.
	c.SelectChoice(1, 11)
	c.SelectChoice(1, 10)
	c.AnswerText(2, "a short explanation")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if server.AnswerCalls(1) > 0 && server.AnswerCalls(2) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, server.AnswerCalls(1), "debounced edits must reach the server once")
	require.Equal(t, 1, server.AnswerCalls(2))

	attemptID := c.AttemptID()
	stored, ok := server.Answer(attemptID, 1)
	require.True(t, ok)
	require.Equal(t, int64(10), *stored.SelectedChoiceID)

	// A transiently failing finalize is surfaced and then retried manually.
	server.FailNextFinalize(1)
	require.Error(t, c.Finalize(ctx))
	require.Equal(t, session.StateSubmitting, c.State())
	require.NoError(t, c.Finalize(ctx))
	require.Equal(t, session.StateSubmitted, c.State())
	require.Equal(t, 2, server.FinalizeCalls())

	// Grading shows up through a re-read, never through local mutation.
	require.True(t, server.Grade(attemptID))
	attempt, err := c.RefreshAttempt(ctx)
	require.NoError(t, err)
	require.Equal(t, platform.StatusGraded, attempt.Status)
	require.NotNil(t, attempt.Score)
	require.Equal(t, 1.0, *attempt.Score)
}
