package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"quiz-client/internal/credentials"
	"quiz-client/internal/platform"
)

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Login exchanges a username/password for a credential pair and stores it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var payload tokenResponse
	err := c.doJSONUnauthenticated(ctx, http.MethodPost, "/token/",
		map[string]string{"username": username, "password": password}, &payload)
	if err != nil {
		return err
	}

	if err := c.creds.Save(ctx, credentials.Pair{Access: payload.Access, Refresh: payload.Refresh}); err != nil {
		return err
	}
	c.log.Info("logged in", "username", username)
	return nil
}

// Logout discards the stored credential pair.
func (c *Client) Logout(ctx context.Context) error {
	return c.creds.Clear(ctx)
}

func (c *Client) ListQuizzes(ctx context.Context) ([]platform.QuizSummary, error) {
	var payload struct {
		Quizzes []platform.QuizSummary `json:"quizzes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/quizzes/", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Quizzes, nil
}

func (c *Client) GetQuiz(ctx context.Context, quizID int64) (platform.Quiz, error) {
	var quiz platform.Quiz
	if err := c.doJSON(ctx, http.MethodGet, quizPath(quizID), nil, &quiz); err != nil {
		return platform.Quiz{}, err
	}
	return quiz, nil
}

// StartSubmission starts a new attempt or resumes the existing in-progress
// one; the endpoint is idempotent.
func (c *Client) StartSubmission(ctx context.Context, quizID int64) (platform.Attempt, error) {
	var attempt platform.Attempt
	if err := c.doJSON(ctx, http.MethodPost, quizPath(quizID)+"start-submission/", nil, &attempt); err != nil {
		return platform.Attempt{}, err
	}
	if !attempt.Status.Valid() {
		return platform.Attempt{}, fmt.Errorf("unknown attempt status %q", attempt.Status)
	}
	return attempt, nil
}

// SubmitAnswer upserts one question's answer; safe to call repeatedly for
// the same question.
func (c *Client) SubmitAnswer(ctx context.Context, submissionID int64, answer platform.AnswerPayload) error {
	if answer.SelectedChoiceID == nil && answer.TextAnswer == nil {
		return errors.New("answer payload has neither a choice nor text")
	}
	return c.doJSON(ctx, http.MethodPost, submissionPath(submissionID)+"submit-answer/", answer, nil)
}

// Finalize irreversibly ends the attempt's editable phase. The server treats
// repeated calls after success as a no-op and returns the final attempt.
func (c *Client) Finalize(ctx context.Context, submissionID int64) (platform.Attempt, error) {
	var attempt platform.Attempt
	if err := c.doJSON(ctx, http.MethodPost, submissionPath(submissionID)+"finalize/", nil, &attempt); err != nil {
		return platform.Attempt{}, err
	}
	return attempt, nil
}

// GetSubmission re-reads an attempt, e.g. to observe a later graded
// annotation.
func (c *Client) GetSubmission(ctx context.Context, submissionID int64) (platform.Attempt, error) {
	var attempt platform.Attempt
	if err := c.doJSON(ctx, http.MethodGet, submissionPath(submissionID), nil, &attempt); err != nil {
		return platform.Attempt{}, err
	}
	return attempt, nil
}

func quizPath(quizID int64) string {
	return "/quizzes/" + strconv.FormatInt(quizID, 10) + "/"
}

func submissionPath(submissionID int64) string {
	return "/submissions/" + strconv.FormatInt(submissionID, 10) + "/"
}
