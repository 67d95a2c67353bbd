// cmd/conclave/main.go
//
// Entry point for the conclave CLI.
//
// Flow:
// 1. Bootstrap the .conclave directory in the current project
// 2. Wire config -> backend client -> deliberation engine -> store
// 3. Run one of three frontends: the chat TUI (default), a one-shot
//    question (--ask), or the HTTP API (--serve)

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/quorumworks/conclave/internal/backend"
	"github.com/quorumworks/conclave/internal/config"
	"github.com/quorumworks/conclave/internal/council"
	"github.com/quorumworks/conclave/internal/httpapi"
	"github.com/quorumworks/conclave/internal/logbook"
	"github.com/quorumworks/conclave/internal/logging"
	"github.com/quorumworks/conclave/internal/store"
	"github.com/quorumworks/conclave/internal/tui"
)

func main() {
	ask := flag.String("ask", "", "run a single deliberation turn and print the answer")
	serve := flag.Bool("serve", false, "run the HTTP API instead of the TUI")
	flag.Parse()

	cwd, err := os.Getwd()
	if err != nil {
		fatal("resolve working directory: %v", err)
	}
	if err := config.InitConclaveDir(cwd); err != nil {
		fatal("initialize %s directory: %v", config.ConclaveDir, err)
	}
	cfg, err := config.NewConfig(cwd)
	if err != nil {
		fatal("%v", err)
	}

	logger, err := logging.New(cwd)
	if err != nil {
		fatal("%v", err)
	}
	defer logger.Close()

	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), "deliberation.log"))
	if err != nil {
		fatal("open deliberation log: %v", err)
	}

	targets, err := backend.TargetsFromConfig(cfg)
	if err != nil {
		fatal("%v", err)
	}
	caller := backend.NewClient(targets)
	engine, err := council.NewEngine(cfg, caller, council.WithLogbook(lb))
	if err != nil {
		fatal("%v", err)
	}
	st := store.New(cfg.ConversationsDir())

	switch {
	case strings.TrimSpace(*ask) != "":
		runAsk(engine, st, *ask)
	case *serve:
		runServe(cfg, engine, st, logger)
	default:
		runTUI(engine, st, logger)
	}
}

func runAsk(engine *council.Engine, st *store.Store, query string) {
	turn, err := engine.RunTurn(context.Background(), query)
	if err != nil {
		fatal("%v", err)
	}
	if turn.Status == council.StatusFailed {
		fatal("every council member failed; no answer")
	}
	if _, err := st.AppendTurn("", turn); err != nil {
		fmt.Fprintf(os.Stderr, "warning: persist turn: %v\n", err)
	}

	fmt.Println(turn.Answer())
	fmt.Println()
	for _, entry := range turn.Aggregate {
		origin := turn.Labels[entry.Label]
		fmt.Printf("  %-12s score %-3d ranked by %d\n", origin, entry.Score, entry.Ranked)
	}
	if turn.Stage3 != nil && turn.Stage3.UsedFallback {
		fmt.Printf("  (chairman unavailable; answer is the top-ranked response from %s)\n", turn.Stage3.Backend)
	}
}

func runServe(cfg *config.Config, engine *council.Engine, st *store.Store, logger *logging.Logger) {
	settings := httpapi.SettingsFromConfig(cfg)
	settings.Enabled = true
	server := httpapi.NewServer(settings, engine, st, httpapi.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.Start(ctx); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("conclave API listening on %s\n", server.Addr())
	<-ctx.Done()
	if err := server.Shutdown(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: shutdown: %v\n", err)
	}
}

func runTUI(engine *council.Engine, st *store.Store, logger *logging.Logger) {
	p := tea.NewProgram(
		tui.NewApp(engine, tui.WithRecorder(st)),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		logger.Printf("tui error: %v", err)
		fatal("run TUI: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "conclave: "+format+"\n", args...)
	os.Exit(1)
}
