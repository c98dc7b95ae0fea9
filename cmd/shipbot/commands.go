package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hearthlabs/shipbot/internal/agent"
	"github.com/hearthlabs/shipbot/internal/config"
	"github.com/hearthlabs/shipbot/internal/domain"
	"github.com/hearthlabs/shipbot/internal/intake"
	"github.com/hearthlabs/shipbot/internal/maintenance"
	"github.com/hearthlabs/shipbot/internal/notify"
	"github.com/hearthlabs/shipbot/internal/pipeline"
	"github.com/hearthlabs/shipbot/internal/prompts"
	"github.com/hearthlabs/shipbot/internal/release"
	"github.com/hearthlabs/shipbot/internal/repo"
	"github.com/hearthlabs/shipbot/internal/risk"
	"github.com/hearthlabs/shipbot/internal/runlog"
	"github.com/hearthlabs/shipbot/internal/workstore"
	"github.com/hearthlabs/shipbot/tui"
	"github.com/hearthlabs/shipbot/web/api"
	"github.com/spf13/cobra"
)

var (
	enqueueRequester string
	statusLimit      int
	historyLimit     int
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the delivery daemon",
		RunE:  runRun,
	}
	rootCmd.AddCommand(runCmd)

	// once command
	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Process a single work item and exit",
		RunE:  runOnce,
	}
	rootCmd.AddCommand(onceCmd)

	// enqueue command
	enqueueCmd := &cobra.Command{
		Use:   "enqueue DESCRIPTION",
		Short: "Queue a work order",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEnqueue,
	}
	enqueueCmd.Flags().StringVar(&enqueueRequester, "requester", os.Getenv("USER"), "who is asking for the change")
	rootCmd.AddCommand(enqueueCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the queue",
		RunE:  runStatus,
	}
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of items to show")
	rootCmd.AddCommand(statusCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show past delivery cycles",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of cycles to show")
	rootCmd.AddCommand(historyCmd)

	// tui command
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the terminal dashboard",
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildOrchestrator wires the pipeline from already-opened collaborators.
// events may be nil when no status server is running.
func buildOrchestrator(cfg *config.Config, logger *slog.Logger, store *workstore.Store, ledger *runlog.Store, tree *repo.Tree, events pipeline.EventSink) (*pipeline.Orchestrator, error) {
	classifier, err := risk.NewClassifier(cfg.Policy.ForbiddenPaths)
	if err != nil {
		return nil, fmt.Errorf("policy.forbidden_paths: %w", err)
	}

	runner := &agent.Runner{
		Binary:          cfg.Agent.Binary,
		Model:           cfg.Agent.Model,
		MaxTurns:        cfg.Agent.MaxTurns,
		Timeout:         cfg.AgentTimeout(),
		AllowedTools:    cfg.Agent.AllowedTools,
		DisallowedTools: cfg.Agent.DisallowedTools,
		Logger:          logger,
	}

	waiter := &release.Waiter{
		Source: release.NewGitTagSource(tree, cfg.Release.TagPrefix),
		Window: time.Duration(cfg.Release.WaitSecs) * time.Second,
		Every:  time.Duration(cfg.Release.PollSecs) * time.Second,
		Logger: logger,
	}

	return pipeline.New(pipeline.Deps{
		Store:    store,
		Tree:     tree,
		Agent:    runner,
		Classify: classifier,
		Releases: waiter,
		Ledger:   ledger,
		Events:   events,
		Notify:   buildNotifier(cfg),
		Prompts:  prompts.DefaultLoader(cfg.General.RepoRoot),
		Logger:   logger,
	}, pipeline.Options{
		RepoRoot:       cfg.General.RepoRoot,
		ForbiddenPaths: cfg.Policy.ForbiddenPaths,
		MaxTurns:       cfg.Agent.MaxTurns,
		SiteBaseURL:    cfg.General.SiteBaseURL,
		PollInterval:   cfg.PollInterval(),
	}), nil
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var defaults []notify.Notifier
	if cfg.Notifications.SlackWebhook != "" {
		defaults = append(defaults, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	defaults = append(defaults, notify.NewDesktopNotifier(cfg.Notifications.Desktop))

	router := &notify.Router{Default: notify.NewMultiNotifier(defaults...)}
	if cfg.Notifications.ReviewerWebhook != "" {
		router.Reviewer = notify.NewSlackNotifier(cfg.Notifications.ReviewerWebhook)
	}
	return router
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := workstore.New(cfg.Store.URL, cfg.Store.ServiceKey, cfg.Store.Table)

	ledger, err := runlog.New(cfg.General.DatabasePath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer ledger.Close()

	tree, err := repo.New(cfg.General.RepoRoot,
		repo.WithMainBranch(cfg.General.MainBranch),
		repo.WithRemote(cfg.General.Remote))
	if err != nil {
		return err
	}
	if branch, err := tree.CurrentBranch(); err == nil && branch != cfg.General.MainBranch {
		logger.Warn("managed tree is not on the integration branch", "branch", branch)
	}
	if clean, err := tree.IsClean(); err == nil && !clean {
		logger.Warn("managed tree has local changes; the first cycle will discard them")
	}

	// The hub has to exist before the orchestrator so cycles can feed it.
	var events pipeline.EventSink
	webErr := make(chan error, 1)
	if cfg.Web.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
		server := api.NewServer(store, ledger, addr, logger)
		events = server.Hub()
		go func() { webErr <- server.Start(ctx) }()
	}

	orch, err := buildOrchestrator(cfg, logger, store, ledger, tree, events)
	if err != nil {
		return err
	}

	janitor := &maintenance.Janitor{
		Store:      store,
		Ledger:     ledger,
		Tree:       tree,
		Logger:     logger,
		StaleAfter: time.Duration(cfg.Maintenance.StaleAfterMins) * time.Minute,
		KeepBranch: time.Duration(cfg.Maintenance.PruneAfterDays) * 24 * time.Hour,
		KeepLedger: time.Duration(cfg.Maintenance.KeepLedgerDays) * 24 * time.Hour,
	}

	// Anything still marked in flight at startup is a casualty of the
	// previous run. Fail it now so it surfaces instead of hanging forever.
	if n, err := janitor.FailOrphans(ctx, 0); err != nil {
		logger.Warn("orphan sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("failed orphaned items from previous run", "count", n)
	}

	gate, err := maintenance.NewGate(cfg.Maintenance.Cron)
	if err != nil {
		return fmt.Errorf("maintenance.cron: %w", err)
	}

	if cfg.General.IntakeDir != "" {
		watcher, err := intake.NewWatcher(cfg.General.IntakeDir, store, logger)
		if err != nil {
			return fmt.Errorf("intake watcher: %w", err)
		}
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	go orch.Start(ctx)
	logger.Info("daemon started", "repo", tree.Root(), "poll_interval", cfg.PollInterval())

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopped")
			return nil
		case err := <-webErr:
			if err != nil {
				return fmt.Errorf("status server: %w", err)
			}
		case now := <-ticker.C:
			if gate.Due(now) {
				janitor.Run(ctx)
				gate.MarkRan(now)
			}
		}
	}
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := workstore.New(cfg.Store.URL, cfg.Store.ServiceKey, cfg.Store.Table)

	ledger, err := runlog.New(cfg.General.DatabasePath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer ledger.Close()

	tree, err := repo.New(cfg.General.RepoRoot,
		repo.WithMainBranch(cfg.General.MainBranch),
		repo.WithRemote(cfg.General.Remote))
	if err != nil {
		return err
	}

	orch, err := buildOrchestrator(cfg, logger, store, ledger, tree, nil)
	if err != nil {
		return err
	}

	processed, err := orch.RunOnce(ctx)
	if err != nil {
		return err
	}
	if !processed {
		fmt.Println("queue is empty")
		return nil
	}

	cycles, err := ledger.Recent(1)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		return nil
	}

	c := cycles[0]
	switch c.Outcome {
	case domain.StatusCompleted:
		if c.ReleaseLabel != "" {
			fmt.Printf("item #%d shipped as %s\n", c.ItemID, c.ReleaseLabel)
		} else {
			fmt.Printf("item #%d shipped\n", c.ItemID)
		}
		return nil
	case domain.StatusReview:
		fmt.Printf("item #%d parked on %s for review\n", c.ItemID, c.Branch)
		return nil
	default:
		return fmt.Errorf("item #%d failed (%s): %s", c.ItemID, c.ErrorKind, c.ErrorMessage)
	}
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.URL == "" || cfg.Store.ServiceKey == "" {
		return fmt.Errorf("store.url and store.service_key are required (or set SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY)")
	}

	store := workstore.New(cfg.Store.URL, cfg.Store.ServiceKey, cfg.Store.Table)
	item, err := store.Insert(context.Background(), strings.Join(args, " "), enqueueRequester)
	if err != nil {
		return err
	}

	fmt.Printf("queued work item #%d: %s\n", item.ID, item.Title())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.URL == "" || cfg.Store.ServiceKey == "" {
		return fmt.Errorf("store.url and store.service_key are required (or set SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY)")
	}

	ctx := context.Background()
	store := workstore.New(cfg.Store.URL, cfg.Store.ServiceKey, cfg.Store.Table)

	inflight, err := store.InFlight(ctx)
	if err != nil {
		return err
	}
	items, err := store.Recent(ctx, statusLimit)
	if err != nil {
		return err
	}

	if len(inflight) == 0 {
		fmt.Println("In flight: none")
	}
	for _, it := range inflight {
		line := fmt.Sprintf("In flight: #%d %s (%s)", it.ID, it.Title(), it.Status)
		if it.ProgressMessage != "" {
			line += " - " + it.ProgressMessage
		}
		fmt.Println(line)
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tDECISION\tCREATED\tTITLE")
	for _, it := range items {
		decision := string(it.DeployDecision)
		if decision == "" {
			decision = "-"
		}
		fmt.Fprintf(w, "#%d\t%s\t%s\t%s\t%s\n",
			it.ID, it.Status, decision, it.CreatedAt.Local().Format("Jan 02 15:04"), it.Title())
	}
	w.Flush()

	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ledger, err := runlog.New(cfg.General.DatabasePath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer ledger.Close()

	cycles, err := ledger.Recent(historyLimit)
	if err != nil {
		return err
	}
	stats, err := ledger.Stats()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tOUTCOME\tDECISION\tRELEASE\tTOOK\tWHEN")
	for _, c := range cycles {
		decision := string(c.Decision)
		if decision == "" {
			decision = "-"
		}
		label := c.ReleaseLabel
		if label == "" {
			if c.Outcome == domain.StatusFailed {
				label = string(c.ErrorKind)
			} else {
				label = "-"
			}
		}
		fmt.Fprintf(w, "#%d\t%s\t%s\t%s\t%s\t%s\n",
			c.ItemID, c.Outcome, decision, label,
			c.Duration().Round(time.Second), c.StartedAt.Local().Format("Jan 02 15:04"))
	}
	w.Flush()

	fmt.Printf("\nCycles: %d total | %d shipped (%d auto) | %d review | %d failed | $%.2f spent\n",
		stats.Total, stats.Completed, stats.AutoMerged, stats.Review, stats.Failed, stats.CostUSD)

	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.URL == "" || cfg.Store.ServiceKey == "" {
		return fmt.Errorf("store.url and store.service_key are required (or set SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY)")
	}

	store := workstore.New(cfg.Store.URL, cfg.Store.ServiceKey, cfg.Store.Table)

	ledger, err := runlog.New(cfg.General.DatabasePath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer ledger.Close()

	model := tui.NewModel(store, ledger, 2*time.Second)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
