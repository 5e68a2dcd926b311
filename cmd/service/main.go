// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github-commit-tracker/internal/api"
	"github-commit-tracker/internal/config"
	"github-commit-tracker/internal/discord"
	"github-commit-tracker/internal/github"
	"github-commit-tracker/internal/metrics"
	"github-commit-tracker/internal/scheduler"
	"github-commit-tracker/internal/store"
	"github-commit-tracker/internal/syncer"
	"github-commit-tracker/internal/tracker"
)

// Version is set at build time.
var Version = "dev"

const appName = "commit-tracker"

func main() {
	if err := rootCmd().Execute(); err != nil {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	serveCmd := func() *cobra.Command {
		return &cobra.Command{
			Use:   "serve",
			Short: "Run the Discord bot and the sync scheduler",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup(flags)
				if err != nil {
					return err
				}
				return serve(cmd.Context(), cfg, logger)
			},
		}
	}

	cmd := serveCmd()
	cmd.Use = appName
	cmd.Short = "Announce new GitHub commits in Discord channels"
	cmd.Long = `commit-tracker links Discord channels to GitHub repositories and posts
every new commit on the tracked branch to the linked channel.

Running it without a subcommand is the same as "serve".`
	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (yaml, json, toml or env)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(serveCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "whoami",
		Short: "Show the GitHub account behind GITHUB_TOKEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			return whoami(cmd.Context(), cmd, cfg, logger)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "mappings",
		Short: "List the stored channel mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			return listMappings(cmd.Context(), cmd, cfg, logger)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}

// setup loads configuration and installs the default logger.
func setup(flags globalFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.SlogLevel())
	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded successfully", "store_driver", cfg.StoreDriver, "log_level", cfg.LogLevel)
	return cfg, logger, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireDiscord(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	st, err := store.Open(ctx, store.Options{Driver: cfg.StoreDriver, Path: cfg.StorePath, DBURL: cfg.DBURL}, logger)
	if err != nil {
		return fmt.Errorf("failed to open mapping store: %w", err)
	}
	defer st.Close()

	ghClient, err := newGithubClient(cfg, logger, m)
	if err != nil {
		return err
	}
	logIdentity(ctx, ghClient, logger)

	bot, err := discord.NewBot(cfg.DiscordToken, logger)
	if err != nil {
		return err
	}

	engine := syncer.NewEngine(ghClient, logger, cfg.DefaultBranch)
	t := tracker.New(st, ghClient, discord.NewNotifier(bot.Session, github.WebURL(cfg.GithubAPIURL), logger), engine, m, logger)
	t.Load(ctx)

	schedule := scheduler.Spec(cfg.SyncSchedule, cfg.SyncInterval)
	bot.Handle(discord.NewRouter(t, cfg.CommandPrefix, schedule, logger))
	if err := bot.Open(); err != nil {
		return err
	}
	defer bot.Close()

	sched, err := scheduler.New(schedule, func(ctx context.Context) { t.TriggerSyncAll(ctx) }, logger)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	if cfg.SyncOnStartup {
		sched.RunNow(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewRouter(t, reg, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("HTTP API listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received. Exiting.")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server did not shut down cleanly", "error", err)
			}
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("Scheduler did not stop cleanly", "error", err)
		}
		return nil
	})

	logger.Info("Application started. Waiting for shutdown signal...", "schedule", schedule)
	return g.Wait()
}

func newGithubClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*github.Client, error) {
	opts := []github.Option{github.WithTimeout(cfg.RequestTimeout)}
	if cfg.GithubAPIURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.GithubAPIURL))
	}
	if m != nil {
		opts = append(opts, github.WithMetrics(m))
	}

	if cfg.GithubToken != "" {
		logger.Info("GitHub token loaded", "preview", github.TokenPreview(cfg.GithubToken))
	} else {
		logger.Warn("No GitHub token configured; using unauthenticated requests (60/hour, public repos only)")
	}

	client, err := github.NewClient(cfg.GithubToken, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create github client: %w", err)
	}
	return client, nil
}

func logIdentity(ctx context.Context, client *github.Client, logger *slog.Logger) {
	id := client.GetAuthenticatedIdentity(ctx)
	if id == nil {
		return
	}
	logger.Info("GitHub authentication verified", "login", id.Login, "type", id.Type, "public_repos", id.PublicRepos)
}

func whoami(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	client, err := newGithubClient(cfg, logger, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	id := client.GetAuthenticatedIdentity(ctx)
	if id == nil {
		fmt.Fprintln(out, "Not authenticated: requests are anonymous (60/hour, public repos only).")
		return nil
	}
	fmt.Fprintf(out, "Authenticated as %s (%s)\n", id.Login, id.Type)
	if id.Name != "" {
		fmt.Fprintf(out, "Name: %s\n", id.Name)
	}
	fmt.Fprintf(out, "Public repos: %d\n", id.PublicRepos)
	return nil
}

func listMappings(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	st, err := store.Open(ctx, store.Options{Driver: cfg.StoreDriver, Path: cfg.StorePath, DBURL: cfg.DBURL}, logger)
	if err != nil {
		return fmt.Errorf("failed to open mapping store: %w", err)
	}
	defer st.Close()

	set, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load mappings: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tREPOSITORY\tBRANCH\tLAST SHA\tLAST CHECKED")
	for _, m := range set.Sorted() {
		sha := m.Watermark()
		if len(sha) > 7 {
			sha = sha[:7]
		}
		checked := "never"
		if m.LastCheckedAt != nil {
			checked = m.LastCheckedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ChannelID, m.FullName(), m.EffectiveBranch(cfg.DefaultBranch), sha, checked)
	}
	return w.Flush()
}
