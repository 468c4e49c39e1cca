package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/coachline/internal/conn"
	"github.com/user/coachline/internal/engine"
	"github.com/user/coachline/internal/persist"
	"github.com/user/coachline/internal/title"
	"github.com/user/coachline/internal/transcript"
	"github.com/user/coachline/internal/types"
	"github.com/user/coachline/pkg/llm"
	"github.com/user/coachline/pkg/llm/openai"
)

var resumeID string

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&resumeID, "resume", "", "resume an existing session by id")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	sessions, entries := buildStores(cfg)

	// The remote title strategy only joins the cascade when a key is set;
	// the local strategies carry the rest.
	var completer title.Completer
	if cfg.LLM.APIKey != "" {
		completer = openai.New(&llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
	}

	coord := persist.NewCoordinator(sessions, entries,
		types.StaticIdentity(cfg.Identity.Owner), title.Default(completer))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := conn.New(cfg.Backend.URL, conn.ReconnectPolicy{
		MaxAttempts: cfg.Backend.ReconnectAttempts,
		Interval:    time.Duration(cfg.Backend.ReconnectInterval) * time.Second,
	})
	if err := c.Open(ctx); err != nil {
		return fmt.Errorf("connect to backend: %w", err)
	}
	defer c.Close()

	rec := transcript.New(transcript.WithStaleTimeout(
		time.Duration(cfg.Engine.StaleTimeout) * time.Second))

	notify := make(chan struct{}, 1)
	eng := engine.New(c, rec, coord, engine.NewTrimmer(cfg.LLM.Model, cfg.Engine.HistoryTokens),
		engine.WithSweepInterval(time.Duration(cfg.Engine.SweepInterval)*time.Second),
		engine.WithNotify(func() {
			select {
			case notify <- struct{}{}:
			default:
			}
		}),
	)
	eng.Start(ctx)
	defer eng.Stop()

	shown := 0
	if resumeID != "" {
		loader := persist.NewLoader(sessions, entries)
		session, past, err := loader.Load(ctx, types.SessionID(resumeID))
		if err != nil {
			return fmt.Errorf("resume session: %w", err)
		}
		eng.Resume(session, past)
		fmt.Printf("Resuming %q (%d entries)\n\n", session.Title, len(past))
		for _, entry := range past {
			printEntry(entry)
		}
		shown = len(past)
	}

	// The backend pushes its suggested starter query right after the
	// connection opens; wait for the change signal rather than a fixed beat.
	if example := awaitExample(eng, notify, 500*time.Millisecond); example != "" {
		fmt.Printf("Try asking: %s\n", example)
	}
	fmt.Println("Type a message, /cancel to interrupt, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			if id := eng.SessionID(); id != "" {
				fmt.Printf("Session saved: %s\n", id)
			}
			return nil
		case "/cancel":
			if err := eng.Cancel(); err != nil {
				fmt.Fprintf(os.Stderr, "Cancel failed: %v\n", err)
			}
			continue
		}

		if err := eng.Send(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
			continue
		}
		shown = awaitTurn(eng, notify, shown)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if id := eng.SessionID(); id != "" {
		fmt.Printf("Session saved: %s\n", id)
	}
	return nil
}

// awaitExample waits for the backend's suggested starter query. The wait is
// bounded so a backend that never sends one does not delay the prompt.
func awaitExample(eng *engine.Engine, notify <-chan struct{}, wait time.Duration) string {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for {
		if example := eng.Example(); example != "" {
			return example
		}
		select {
		case <-notify:
		case <-deadline.C:
			return eng.Example()
		}
	}
}

// awaitTurn prints entries as they complete and returns once the transcript
// has no streaming entries left and the backend produced a response. A quiet
// deadline keeps a dead backend from hanging the prompt forever.
func awaitTurn(eng *engine.Engine, notify <-chan struct{}, shown int) int {
	deadline := time.NewTimer(2 * time.Minute)
	defer deadline.Stop()

	for {
		entries := eng.Entries()
		for shown < len(entries) && !entries[shown].InProgress {
			if entries[shown].Role != types.RoleUser {
				printEntry(entries[shown])
			}
			shown++
		}
		if shown == len(entries) && len(entries) > 0 && entries[len(entries)-1].Role != types.RoleUser {
			return shown
		}

		select {
		case <-notify:
		case <-deadline.C:
			fmt.Fprintln(os.Stderr, "No response from backend; giving up on this turn.")
			return shown
		}
	}
}

func printEntry(entry *types.Entry) {
	switch entry.Kind {
	case types.KindText:
		fmt.Println(entry.Text)
	case types.KindReasoning:
		fmt.Printf("[thinking] %s\n", entry.Text)
	case types.KindToolCall:
		if entry.Tool != nil {
			fmt.Printf("[tool %s] %s\n", entry.Tool.ToolName, entry.Tool.Output)
		}
	case types.KindPlan:
		if entry.Plan != nil {
			fmt.Printf("[plan] %s\n", strings.Join(entry.Plan.Todo, "; "))
		}
	case types.KindWorkerResult:
		if entry.Worker != nil {
			fmt.Printf("[worker] %s\n", entry.Worker.Output)
		}
	case types.KindReport:
		if entry.Report != nil {
			fmt.Println(entry.Report.Output)
		}
	case types.KindAgentSwitch:
		if entry.Agent != nil {
			fmt.Printf("[agent] %s\n", entry.Agent.Name)
		}
	case types.KindError:
		fmt.Printf("[error] %s\n", entry.Text)
	default:
		fmt.Println(entry.Content())
	}
}
