package userclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-client/internal/platform"
)

func TestParseID(t *testing.T) {
	id, err := parseID([]string{"start", "12"}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = parseID([]string{"start"}, 1)
	assert.Error(t, err)

	_, err = parseID([]string{"start", "abc"}, 1)
	assert.Error(t, err)

	_, err = parseID([]string{"start", "0"}, 1)
	assert.Error(t, err)

	_, err = parseID([]string{"start", "-3"}, 1)
	assert.Error(t, err)
}

func TestAnswerTextKeepsInternalSpacing(t *testing.T) {
	assert.Equal(t, "a data race  happens", answerText("answer 3 a data race  happens"))
	assert.Equal(t, "x", answerText("  answer 3 x  "))
	assert.Equal(t, "", answerText("answer 3"))
	assert.Equal(t, "", answerText("answer"))
}

func TestChoiceForLetter(t *testing.T) {
	question := platform.Question{
		Choices: []platform.Choice{{ID: 10}, {ID: 20}, {ID: 30}},
	}

	id, ok := choiceForLetter(question, "a")
	require.True(t, ok)
	assert.Equal(t, int64(10), id)

	id, ok = choiceForLetter(question, " C ")
	require.True(t, ok)
	assert.Equal(t, int64(30), id)

	_, ok = choiceForLetter(question, "d")
	assert.False(t, ok, "letter past the last choice")

	_, ok = choiceForLetter(question, "ab")
	assert.False(t, ok)

	_, ok = choiceForLetter(platform.Question{}, "a")
	assert.False(t, ok, "free-text question has no choices")
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "02:05", formatRemaining(2*time.Minute+5*time.Second))
	assert.Equal(t, "00:00", formatRemaining(0))
	assert.Equal(t, "00:59", formatRemaining(59*time.Second))
	assert.Equal(t, "61:00", formatRemaining(61*time.Minute))
}

func TestFormatLimit(t *testing.T) {
	assert.Equal(t, "untimed", formatLimit(nil))
	limit := int64(90)
	assert.Equal(t, "01:30", formatLimit(&limit))
}

func TestDescribeAttempt(t *testing.T) {
	assert.Equal(t, "submitted", describeAttempt(platform.Attempt{Status: platform.StatusSubmitted}))

	score := 2.5
	assert.Equal(t, "graded, score 2.5", describeAttempt(platform.Attempt{
		Status: platform.StatusGraded,
		Score:  &score,
	}))
}
