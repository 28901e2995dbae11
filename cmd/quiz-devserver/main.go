package main

import (
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"quiz-client/internal/platform"
	"quiz-client/internal/studentserver"
)

// quiz-devserver runs the in-process platform stub standalone so the client
// can be exercised without the real backend.
func main() {
	_ = godotenv.Load()

	defaultAddr := os.Getenv("ADDR")
	if defaultAddr == "" {
		defaultAddr = ":8080"
	}

	addr := flag.String("addr", defaultAddr, "HTTP listen address")
	flag.Parse()

	server := studentserver.New(studentserver.Config{AccessTTL: 5 * time.Minute})
	seedDemo(server)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("quiz-devserver listening on %s (demo user: student/secret)", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}

func seedDemo(server *studentserver.Server) {
	server.AddUser("student", "secret")

	limit := int64(120)
	server.AddQuiz(platform.Quiz{
		Title:           "Go basics",
		Description:     "A short timed demo quiz.",
		DurationSeconds: &limit,
		Questions: []platform.Question{
			{
				ID:     1,
				Prompt: "Which keyword starts a goroutine?",
				Choices: []platform.Choice{
					{ID: 1, Text: "go"},
					{ID: 2, Text: "async"},
					{ID: 3, Text: "spawn"},
				},
			},
			{
				ID:     2,
				Prompt: "What does 'make(chan int, 3)' create?",
				Choices: []platform.Choice{
					{ID: 4, Text: "a buffered channel"},
					{ID: 5, Text: "an unbuffered channel"},
					{ID: 6, Text: "a slice of channels"},
				},
			},
			{
				ID:     3,
				Prompt: "In one sentence, what is a data race?",
			},
		},
	}, map[int64]int64{1: 1, 2: 4})

	server.AddQuiz(platform.Quiz{
		Title:       "Untimed practice",
		Description: "No deadline, take your time.",
		Questions: []platform.Question{
			{
				ID:     10,
				Prompt: "Which function formats into a string?",
				Choices: []platform.Choice{
					{ID: 11, Text: "fmt.Sprintf"},
					{ID: 12, Text: "fmt.Println"},
				},
			},
		},
	}, map[int64]int64{10: 11})
}
