package userclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"quiz-client/internal/api"
	"quiz-client/internal/credentials"
	"quiz-client/internal/logging"
	"quiz-client/internal/session"
)

const (
	defaultServer      = "http://127.0.0.1:8080"
	defaultHTTPTimeout = 10 * time.Second
)

type Config struct {
	ServerURL string
	// CredentialsPath is the sqlite file holding the access/refresh pair.
	// Empty means in-memory only (credentials die with the process).
	CredentialsPath string
	HTTPTimeout     time.Duration
	Verbose         bool
}

// Run drives the interactive student session: login, browse quizzes, take a
// timed attempt, submit.
func Run(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	serverURL := strings.TrimSpace(cfg.ServerURL)
	if serverURL == "" {
		serverURL = defaultServer
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(logging.NewHandler(out, level))

	store, closeStore, err := openCredentialStore(cfg.CredentialsPath)
	if err != nil {
		return err
	}
	defer closeStore()

	client := api.New(serverURL, &http.Client{Timeout: timeout}, store, logger)

	app := &app{
		ctx:    ctx,
		out:    out,
		client: client,
		logger: logger,
	}
	defer app.closeSession()

	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "quiz-client\nserver=%s\n\n", serverURL)
	printHelp(out)

	for {
		fmt.Fprint(out, "\n> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		args := strings.Fields(line)
		command := strings.ToLower(args[0])

		switch command {
		case "help":
			printHelp(out)
		case "exit":
			return nil
		case "login":
			app.runLogin(args)
		case "logout":
			app.runLogout()
		case "quizzes":
			app.runQuizzes()
		case "start":
			app.runStart(args)
		case "show":
			app.runShow()
		case "answer":
			app.runAnswer(args, line)
		case "retry-saves":
			app.runRetrySaves()
		case "submit":
			app.runSubmit()
		case "refresh":
			app.runRefresh()
		default:
			fmt.Fprintln(out, "unknown command. type 'help' for usage.")
		}
	}
}

func openCredentialStore(path string) (credentials.Store, func(), error) {
	if strings.TrimSpace(path) == "" {
		return credentials.NewMemoryStore(), func() {}, nil
	}
	store, err := credentials.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening credential store at %s: %w", path, err)
	}
	return store, func() { _ = store.Close() }, nil
}

type app struct {
	ctx    context.Context
	out    io.Writer
	client *api.Client
	logger *slog.Logger

	controller *session.Controller
}

func (a *app) runLogin(args []string) {
	if len(args) != 3 {
		fmt.Fprintln(a.out, "usage: login <username> <password>")
		return
	}
	if err := a.client.Login(a.ctx, args[1], args[2]); err != nil {
		a.printError(err)
		return
	}
	fmt.Fprintf(a.out, "logged in as %s\n", args[1])
}

func (a *app) runLogout() {
	a.closeSession()
	if err := a.client.Logout(a.ctx); err != nil {
		a.printError(err)
		return
	}
	fmt.Fprintln(a.out, "logged out")
}

func (a *app) runQuizzes() {
	quizzes, err := a.client.ListQuizzes(a.ctx)
	if err != nil {
		a.printError(err)
		return
	}
	if len(quizzes) == 0 {
		fmt.Fprintln(a.out, "No quizzes available.")
		return
	}

	fmt.Fprintln(a.out, "Available quizzes:")
	for _, item := range quizzes {
		fmt.Fprintf(a.out, "  %d. %s (%d questions, %s)\n",
			item.ID, item.Title, item.QuestionCount, formatLimit(item.DurationSeconds))
	}
}

func (a *app) runStart(args []string) {
	quizID, err := parseID(args, 1)
	if err != nil {
		fmt.Fprintln(a.out, "usage: start <quiz_id>")
		return
	}

	a.closeSession()

	controller := session.New(session.Config{
		Client: a.client,
		QuizID: quizID,
		Logger: a.logger,
	}, a.sessionEvents())

	if err := controller.Start(a.ctx); err != nil {
		controller.Close()
		a.printError(err)
		return
	}
	a.controller = controller

	quiz := controller.Quiz()
	attempt := controller.Attempt()
	fmt.Fprintf(a.out, "Started %q (attempt %d, status %s)\n", quiz.Title, attempt.ID, attempt.Status)
	if remaining, timed := controller.Remaining(); timed && controller.State() == session.StateInProgress {
		fmt.Fprintf(a.out, "Time remaining: %s\n", formatRemaining(remaining))
	}
	a.printQuestions()
}

func (a *app) runShow() {
	if a.controller == nil {
		fmt.Fprintln(a.out, "no active attempt. use 'start <quiz_id>'.")
		return
	}
	attempt := a.controller.Attempt()
	fmt.Fprintf(a.out, "Attempt %d: %s\n", attempt.ID, describeAttempt(attempt))
	if remaining, timed := a.controller.Remaining(); timed && a.controller.State() == session.StateInProgress {
		fmt.Fprintf(a.out, "Time remaining: %s\n", formatRemaining(remaining))
	}
	a.printQuestions()
}

func (a *app) runAnswer(args []string, line string) {
	if a.controller == nil {
		fmt.Fprintln(a.out, "no active attempt. use 'start <quiz_id>'.")
		return
	}
	if a.controller.State() != session.StateInProgress {
		fmt.Fprintln(a.out, "attempt is no longer editable.")
		return
	}
	if len(args) < 3 {
		fmt.Fprintln(a.out, "usage: answer <question_number> <choice letter | text>")
		return
	}

	number, err := parseID(args, 1)
	if err != nil {
		fmt.Fprintln(a.out, "question number must be a positive integer")
		return
	}
	quiz := a.controller.Quiz()
	if number < 1 || number > int64(len(quiz.Questions)) {
		fmt.Fprintf(a.out, "question number must be between 1 and %d\n", len(quiz.Questions))
		return
	}
	question := quiz.Questions[number-1]

	if question.IsFreeText() {
		a.controller.AnswerText(question.ID, answerText(line))
		fmt.Fprintf(a.out, "recorded text answer for question %d\n", number)
		return
	}

	choiceID, ok := choiceForLetter(question, args[2])
	if !ok {
		fmt.Fprintf(a.out, "choose a letter A-%c\n", 'A'+len(question.Choices)-1)
		return
	}
	a.controller.SelectChoice(question.ID, choiceID)
	fmt.Fprintf(a.out, "recorded answer %s for question %d\n", strings.ToUpper(args[2]), number)
}

func (a *app) runRetrySaves() {
	if a.controller == nil {
		fmt.Fprintln(a.out, "no active attempt.")
		return
	}
	a.controller.RetryFailedSaves()
	fmt.Fprintln(a.out, "re-queued failed saves")
}

func (a *app) runSubmit() {
	if a.controller == nil {
		fmt.Fprintln(a.out, "no active attempt.")
		return
	}

	err := a.controller.Finalize(a.ctx)
	switch {
	case err == nil:
		// Outcome already reported via the Finalized event.
	case errors.Is(err, session.ErrFinalizeInFlight):
		fmt.Fprintln(a.out, "submission already in progress")
	case errors.Is(err, session.ErrNotActive):
		fmt.Fprintln(a.out, "attempt is not active")
	default:
		a.printError(err)
		fmt.Fprintln(a.out, "submission failed; type 'submit' to retry (answers stay locked)")
	}
}

func (a *app) runRefresh() {
	if a.controller == nil {
		fmt.Fprintln(a.out, "no active attempt.")
		return
	}
	attempt, err := a.controller.RefreshAttempt(a.ctx)
	if err != nil {
		a.printError(err)
		return
	}
	fmt.Fprintf(a.out, "Attempt %d: %s\n", attempt.ID, describeAttempt(attempt))
}

func (a *app) closeSession() {
	if a.controller != nil {
		a.controller.Close()
		a.controller = nil
	}
}

func (a *app) printError(err error) {
	switch {
	case errors.Is(err, api.ErrSessionExpired):
		fmt.Fprintln(a.out, "session expired; please login again")
	case errors.Is(err, api.ErrUnavailable):
		fmt.Fprintln(a.out, "quiz platform unavailable; try again")
	default:
		fmt.Fprintf(a.out, "error: %v\n", err)
	}
}
