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
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"helpdesk-ai/internal/adapter/channel"
	"helpdesk-ai/internal/adapter/mcp"
	"helpdesk-ai/internal/adapter/ticket"
	"helpdesk-ai/internal/adapter/tui/chat"
	"helpdesk-ai/internal/infra/config"
	"helpdesk-ai/internal/usecase/scheduling"
)

// start loads config and builds the desk. The returned stop func tears
// down the app before logging and tracing.
func start(ctx context.Context, f flags, adjust func(*config.Config)) (*app, func(), error) {
	cfg, log, cleanup, err := loadRuntime(ctx, f, adjust)
	if err != nil {
		return nil, nil, err
	}
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, func() { a.Close(); cleanup() }, nil
}

// runChat opens the terminal chat. Log output moves to a file so it does
// not draw over the UI.
func runChat(args []string) error {
	f := parseFlags(args)
	ctx := context.Background()

	a, stop, err := start(ctx, f, func(cfg *config.Config) {
		if cfg.Logger.Output == "stderr" || cfg.Logger.Output == "" {
			dir := filepath.Dir(cfg.Session.DataDir)
			if err := os.MkdirAll(dir, 0o700); err == nil {
				cfg.Logger.Output = filepath.Join(dir, "helpdesk.log")
			} else {
				cfg.Logger.Output = "discard"
			}
		}
	})
	if err != nil {
		return err
	}
	defer stop()

	p := tea.NewProgram(chat.New(a.desk, f.UserID, ""), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// runAsk answers a single message and prints the rendered reply.
func runAsk(args []string) error {
	f := parseFlags(args)
	message := strings.TrimSpace(strings.Join(f.Rest, " "))
	if message == "" {
		return errors.New("usage: helpdesk ask MESSAGE")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, stop, err := start(ctx, f, nil)
	if err != nil {
		return err
	}
	defer stop()

	reply, err := a.desk.Ask(ctx, "", f.UserID, message)
	if err != nil {
		return err
	}
	fmt.Println(chat.NewRenderer(80).Reply(reply))
	if reply.RequiresApproval {
		fmt.Printf("Session %s is waiting for approval. Continue in 'helpdesk chat' or POST /api/v1/approve.\n", reply.SessionID)
	}
	return nil
}

// runServe runs the HTTP/WebSocket API and the maintenance scheduler until
// interrupted.
func runServe(args []string) error {
	f := parseFlags(args)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, stop, err := start(ctx, f, nil)
	if err != nil {
		return err
	}
	defer stop()

	sched, err := buildScheduler(a)
	if err != nil {
		return err
	}

	srv := channel.NewHTTPServer(a.desk, a.bus, a.cfg.HTTP, a.log)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	if a.cfg.Scheduler.Enabled {
		sched.Start(ctx)
	}
	a.log.Info("helpdesk serving", "addr", srv.BoundAddr(), "version", version)

	<-ctx.Done()
	a.log.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	sched.Stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", "error", err)
	}
	return nil
}

// buildScheduler registers the maintenance actions and schedules the
// configured tasks.
func buildScheduler(a *app) (*scheduling.Scheduler, error) {
	sched := scheduling.NewScheduler(a.log)
	sched.Register(scheduling.ActionAuditRetention, func(ctx context.Context) error {
		if a.audit == nil {
			return nil
		}
		removed, err := a.audit.EnforceRetention(ctx)
		if err != nil {
			return err
		}
		if removed > 0 {
			a.log.Info("audit retention applied", "removed", removed)
		}
		return nil
	})
	sched.Register(scheduling.ActionSessionReap, func(ctx context.Context) error {
		a.desk.ReapSessions(ctx, a.cfg.Session.TTL)
		return nil
	})
	if err := sched.AddFromConfig(a.cfg.Scheduler.Tasks); err != nil {
		return nil, err
	}
	return sched, nil
}

// runMCP serves the IT tools over stdio. Logs stay on stderr.
func runMCP(args []string) error {
	f := parseFlags(args)
	ctx := context.Background()

	a, stop, err := start(ctx, f, func(cfg *config.Config) {
		if strings.EqualFold(cfg.Logger.Output, "stdout") {
			cfg.Logger.Output = "stderr"
		}
	})
	if err != nil {
		return err
	}
	defer stop()

	srv := mcp.NewServer("helpdesk", version, mcp.Deps{
		Directory: a.dir,
		Ops:       a.ops,
		Tickets:   a.jira,
		Desk:      a.desk,
	}, a.log)
	return srv.ServeStdio()
}

// runSeed (re)builds the SQLite knowledge index from the built-in corpus
// and product catalog.
func runSeed(args []string) error {
	f := parseFlags(args)
	ctx := context.Background()

	cfg, log, cleanup, err := loadRuntime(ctx, f, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := openSQLite(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seedStore(ctx, store); err != nil {
		return err
	}
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d documents into %s\n", n, cfg.Knowledge.DBPath)
	return nil
}

// runJiraCheck verifies the configured Jira credentials.
func runJiraCheck(args []string) error {
	f := parseFlags(args)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, log, cleanup, err := loadRuntime(ctx, f, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	client := ticket.NewJiraClient(cfg.Jira, log)
	info, err := client.TestConnection(ctx)
	if err != nil {
		return fmt.Errorf("jira connection failed: %w", err)
	}
	fmt.Printf("Connected to %s as %s", cfg.Jira.Domain, info.User)
	if info.Email != "" {
		fmt.Printf(" <%s>", info.Email)
	}
	fmt.Println()

	fmt.Println("Projects:")
	for _, p := range client.Projects(ctx) {
		fmt.Printf("  %-10s %s\n", p.Key, p.Name)
	}
	return nil
}
