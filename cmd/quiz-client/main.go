package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"quiz-client/internal/userclient"
)

func main() {
	// .env is optional; flags and real env win over it.
	_ = godotenv.Load()

	defaultServer := os.Getenv("QUIZ_SERVER")
	if defaultServer == "" {
		defaultServer = "http://127.0.0.1:8080"
	}
	defaultCredentials := os.Getenv("QUIZ_CREDENTIALS_DB")
	if defaultCredentials == "" {
		defaultCredentials = "quiz-client.db"
	}

	server := flag.String("server", defaultServer, "quiz platform base URL")
	credentialsPath := flag.String("credentials-db", defaultCredentials, "sqlite file for the stored login (empty = in-memory)")
	timeout := flag.Duration("timeout", 10*time.Second, "HTTP timeout")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	err := userclient.Run(context.Background(), os.Stdin, os.Stdout, userclient.Config{
		ServerURL:       *server,
		CredentialsPath: *credentialsPath,
		HTTPTimeout:     *timeout,
		Verbose:         *verbose,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
