// Command reportctl is an interactive filter form for a reports server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/JonMunkholm/reports/internal/cli"
	"github.com/JonMunkholm/reports/internal/logging"
	"github.com/JonMunkholm/reports/internal/reports"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.ParseArgs(os.Args[1:], environ(), os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}

	client, err := reports.NewClient(cfg.Server, reports.WithAPIKey(cfg.APIKey))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	logger := logging.New(os.Stderr, os.Getenv("LOG_LEVEL"), "text")
	repl := cli.NewREPL(cfg, client, os.Stdout, logger)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(complete)

	history := historyFile(cfg)
	if f, err := os.Open(history); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	runErr := repl.Run(ctx, line)

	if history != "" {
		if f, err := os.Create(history); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		return 1
	}
	return 0
}

var commands = []string{"set ", "search ", "apply", "reset", "sort ", "show", "export", "help", "quit"}

func complete(line string) []string {
	var out []string
	for _, c := range commands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}
	if strings.HasPrefix(line, "set ") {
		for _, f := range reports.Fields {
			if f == reports.FieldSearch {
				continue
			}
			if c := "set " + string(f) + " "; strings.HasPrefix(c, line) {
				out = append(out, c)
			}
		}
	}
	return out
}

func historyFile(cfg cli.Config) string {
	if cfg.HistoryFile != "" {
		return cfg.HistoryFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".reportctl_history")
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
