package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"judgehost/internal/common/httpclient"
	"judgehost/internal/console"

	"github.com/chzyer/readline"
)

func main() {
	baseURL := flag.String("base", envOr("JUDGE_ADMIN_URL", "http://127.0.0.1:8085"), "Judge service base URL")
	token := flag.String("token", envOr("JUDGE_TOKEN", "KoNoSandboxDa"), "Sandbox token")
	timeout := flag.Duration("timeout", 30*time.Second, "HTTP timeout")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	history := flag.String("history", defaultHistory(), "History file, empty disables history")
	flag.Parse()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          console.Prompt,
		HistoryFile:     *history,
		AutoComplete:    console.Completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init readline failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = rl.Close()
	}()

	client := httpclient.New(*baseURL, *timeout)
	session := console.New(client, *token, *pretty, rl.Stdout())
	session.Run(context.Background(), rl)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultHistory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".judge_console_history")
}
