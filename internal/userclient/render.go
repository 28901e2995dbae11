package userclient

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"quiz-client/internal/platform"
	"quiz-client/internal/session"
)

// sessionEvents wires controller notifications to the terminal. Callbacks
// fire from timer and worker goroutines, so they only print.
func (a *app) sessionEvents() session.Events {
	return session.Events{
		Tick: func(remaining time.Duration) {
			// Announce only the final stretch; a per-second line would bury
			// the prompt.
			seconds := int(remaining.Round(time.Second) / time.Second)
			switch seconds {
			case 60, 30, 10:
				fmt.Fprintf(a.out, "\n%s %s left\n> ", color.YellowString("time:"), formatRemaining(remaining))
			}
		},
		Finalized: func(attempt platform.Attempt) {
			fmt.Fprintf(a.out, "\n%s attempt %d is %s\n> ",
				color.GreenString("submitted:"), attempt.ID, describeAttempt(attempt))
		},
		FinalizeFailed: func(err error, trigger session.FinalizeTrigger) {
			if trigger == session.TriggerDeadline {
				fmt.Fprintf(a.out, "\n%s time is up but submission failed (%v); retrying automatically, answers are locked\n> ",
					color.RedString("attention:"), err)
				return
			}
			fmt.Fprintf(a.out, "\n%s submission failed: %v\n> ", color.RedString("error:"), err)
		},
		SaveStateChanged: func(questionID int64, state platform.SaveState) {
			if state == platform.SaveError {
				fmt.Fprintf(a.out, "\n%s answer for question %d could not be saved; 'retry-saves' to retry\n> ",
					color.RedString("save failed:"), questionID)
			}
		},
	}
}

func (a *app) printQuestions() {
	quiz := a.controller.Quiz()
	answers := a.controller.Answers()
	states := a.controller.SaveStates()

	for idx, question := range quiz.Questions {
		fmt.Fprintf(a.out, "\nQ%d: %s%s\n", idx+1, question.Prompt, saveStateSuffix(states[question.ID]))
		answer, answered := answers[question.ID]
		for choiceIdx, choice := range question.Choices {
			marker := "  "
			if answered && answer.SelectedChoiceID != nil && *answer.SelectedChoiceID == choice.ID {
				marker = color.CyanString("> ")
			}
			fmt.Fprintf(a.out, "%s%c. %s\n", marker, 'A'+choiceIdx, choice.Text)
		}
		if question.IsFreeText() && answered && answer.TextAnswer != nil {
			fmt.Fprintf(a.out, "  your answer: %s\n", *answer.TextAnswer)
		}
	}
}

func saveStateSuffix(state platform.SaveState) string {
	switch state {
	case platform.SavePending, platform.SaveSaving:
		return " " + color.YellowString("(saving)")
	case platform.SaveError:
		return " " + color.RedString("(save failed)")
	default:
		return ""
	}
}
