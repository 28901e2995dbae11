package userclient

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-client/internal/platform"
	"quiz-client/internal/studentserver"
)

// Scripted REPL run against the platform stub, answering and submitting a
// timed quiz end to end.
func TestRunScriptedSession(t *testing.T) {
	server := studentserver.New(studentserver.Config{})
	server.AddUser("student", "secret")

	limit := int64(300)
	quizID := server.AddQuiz(platform.Quiz{
		Title:           "Scripted",
		DurationSeconds: &limit,
		Questions: []platform.Question{
			{ID: 1, Prompt: "pick", Choices: []platform.Choice{{ID: 10, Text: "a"}, {ID: 11, Text: "b"}}},
			{ID: 2, Prompt: "explain"},
		},
	}, map[int64]int64{1: 11})

	require.Equal(t, int64(1), quizID, "the script starts quiz 1")

	httpServer := httptest.NewServer(server.Router())
	defer httpServer.Close()

	script := strings.Join([]string{
		"login student wrong-password",
		"login student secret",
		"quizzes",
		"start 1",
		"answer 1 b",
		"answer 2 it depends",
		"show",
		"frobnicate",
		"submit",
		"refresh",
		"exit",
	}, "\n") + "\n"

	var out strings.Builder
	err := Run(context.Background(), strings.NewReader(script), &out, Config{
		ServerURL:   httpServer.URL,
		HTTPTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "error: invalid username or password")
	assert.Contains(t, output, "logged in as student")
	assert.Contains(t, output, "Scripted (2 questions, 05:00)")
	assert.Contains(t, output, `Started "Scripted"`)
	assert.Contains(t, output, "recorded answer B for question 1")
	assert.Contains(t, output, "recorded text answer for question 2")
	assert.Contains(t, output, "unknown command")

	require.Equal(t, 1, server.FinalizeCalls())
	require.Equal(t, 1, server.AnswerCalls(1))
	require.Equal(t, 1, server.AnswerCalls(2))

	// The submit flushed the staged answers before sealing the attempt; the
	// attempt got the next ID after the quiz.
	answer, ok := server.Answer(2, 1)
	require.True(t, ok)
	require.Equal(t, int64(11), *answer.SelectedChoiceID)

	text, ok := server.Answer(2, 2)
	require.True(t, ok)
	require.Equal(t, "it depends", *text.TextAnswer)
}
