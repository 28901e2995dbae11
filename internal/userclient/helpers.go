package userclient

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"quiz-client/internal/platform"
)

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  help")
	fmt.Fprintln(out, "  login <username> <password>")
	fmt.Fprintln(out, "  logout")
	fmt.Fprintln(out, "  quizzes")
	fmt.Fprintln(out, "  start <quiz_id>")
	fmt.Fprintln(out, "  show")
	fmt.Fprintln(out, "  answer <question_number> <choice letter | text>")
	fmt.Fprintln(out, "  retry-saves")
	fmt.Fprintln(out, "  submit")
	fmt.Fprintln(out, "  refresh")
	fmt.Fprintln(out, "  exit")
}

func parseID(args []string, index int) (int64, error) {
	if len(args) <= index {
		return 0, fmt.Errorf("missing argument")
	}
	value, err := strconv.ParseInt(args[index], 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return value, nil
}

// answerText strips the "answer <n>" prefix and returns the rest of the line
// verbatim, so free-text answers keep their internal spacing.
func answerText(line string) string {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(fields) < 3 {
		return ""
	}
	return strings.TrimSpace(fields[2])
}

func choiceForLetter(question platform.Question, raw string) (int64, bool) {
	letter := strings.ToUpper(strings.TrimSpace(raw))
	if len(letter) != 1 {
		return 0, false
	}
	index := int(letter[0] - 'A')
	if index < 0 || index >= len(question.Choices) {
		return 0, false
	}
	return question.Choices[index].ID, true
}

func formatLimit(durationSeconds *int64) string {
	if durationSeconds == nil {
		return "untimed"
	}
	return formatRemaining(time.Duration(*durationSeconds) * time.Second)
}

func formatRemaining(remaining time.Duration) string {
	remaining = remaining.Round(time.Second)
	minutes := int(remaining / time.Minute)
	seconds := int(remaining/time.Second) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

func describeAttempt(attempt platform.Attempt) string {
	if attempt.Score != nil {
		return fmt.Sprintf("%s, score %s", attempt.Status, formatScore(*attempt.Score))
	}
	return string(attempt.Status)
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
