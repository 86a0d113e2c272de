package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/arturoeanton/go-star-search/internal/app"
	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/service"
	"github.com/arturoeanton/go-star-search/internal/tui"
	"github.com/arturoeanton/go-star-search/pkg/config"
)

type options struct {
	configPath string
	verbose    bool
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:           "starsearch",
		Short:         "Semantic search over your GitHub stars",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("STARSEARCH_CONFIG"), "Config file path (yaml, toml or json)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at the configured level instead of warn")

	var (
		page int
		all  bool
	)
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Index one page of starred repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return runIndex(ctx, a, page, all)
			})
		},
	}
	indexCmd.Flags().IntVar(&page, "page", 1, "Page to index (1-based)")
	indexCmd.Flags().BoolVar(&all, "all", false, "Keep indexing continuation pages until every star is indexed")

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Clear the index and index page 1 again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				_, err := a.Indexer.Reindex(ctx)
				return err
			})
		},
	}

	var k int
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find starred repositories similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return runSearch(ctx, cmd, a.Search, strings.TrimSpace(strings.Join(args, " ")), k)
			})
		},
	}
	searchCmd.Flags().IntVarP(&k, "limit", "k", service.DefaultSearchLimit, "Maximum number of results")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show how much of the starred list is indexed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				st, err := a.Indexer.Status(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd, st)
				return nil
			})
		},
	}

	var batchSize, maxRetries, pageSize int
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or update indexing settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				patch := map[string]any{}
				if cmd.Flags().Changed("batch-size") {
					patch["batch_size"] = batchSize
				}
				if cmd.Flags().Changed("max-retries") {
					patch["max_retries"] = maxRetries
				}
				if cmd.Flags().Changed("page-size") {
					patch["page_size"] = pageSize
				}
				s := a.Indexer.Settings()
				if len(patch) > 0 {
					var err error
					if s, err = a.Indexer.UpdateSettings(ctx, patch); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "batch_size:  %d\nmax_retries: %d\npage_size:   %d\n", s.BatchSize, s.MaxRetries, s.PageSize)
				return nil
			})
		},
	}
	settingsCmd.Flags().IntVar(&batchSize, "batch-size", 0, fmt.Sprintf("Items per embedding request (%d-%d)", domain.MinBatchSize, domain.MaxBatchSize))
	settingsCmd.Flags().IntVar(&maxRetries, "max-retries", 0, fmt.Sprintf("Attempts per failed item (%d-%d)", domain.MinMaxRetries, domain.MaxMaxRetries))
	settingsCmd.Flags().IntVar(&pageSize, "page-size", 0, fmt.Sprintf("Starred repositories per page (%d-%d)", domain.MinPageSize, domain.MaxPageSize))

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, the GitHub token and the vector store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return runCheck(ctx, cmd, a)
			})
		},
	}

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				summary := ""
				if st, err := a.Indexer.Status(ctx); err == nil {
					summary = fmt.Sprintf("%d of %d starred repositories indexed", st.Indexed, st.Total)
				}
				m := tui.New(a.Search, summary, k)
				_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
				return err
			})
		},
	}
	tuiCmd.Flags().IntVarP(&k, "limit", "k", service.DefaultSearchLimit, "Maximum number of results")

	rootCmd.AddCommand(indexCmd, reindexCmd, searchCmd, statusCmd, settingsCmd, checkCmd, tuiCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withApp loads configuration, wires the app with a terminal progress
// printer and runs fn until it returns or the process is interrupted.
func withApp(cmd *cobra.Command, opts options, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	level := "warn"
	if opts.verbose {
		level = cfg.LogLevel
	}
	slog.SetDefault(app.NewLogger(cmd.ErrOrStderr(), level, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, &progressPrinter{w: cmd.OutOrStdout(), verbose: opts.verbose})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}

func runIndex(ctx context.Context, a *app.App, page int, all bool) error {
	if page < 1 {
		return fmt.Errorf("--page must be at least 1, got %d", page)
	}
	for {
		res, err := a.Indexer.Run(ctx, page)
		if err != nil {
			return err
		}
		if !all || !res.HasMore() {
			return nil
		}
		// A continuation that does not move forward means the source
		// returned fewer items than its reported total.
		if res.NextPage == page && !res.ShortCircuited {
			return fmt.Errorf("page %d indexed nothing new; %d of %d indexed", page, res.Indexed, res.Total)
		}
		page = res.NextPage
	}
}

type searcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
}

func runSearch(ctx context.Context, cmd *cobra.Command, s searcher, query string, k int) error {
	if query == "" {
		return errors.New("query must not be empty")
	}
	results, err := s.Search(ctx, query, k)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No matching starred repositories.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%2d. %-40s %.3f  ★ %d\n", i+1, r.Item.Name, r.Score, r.Item.StarCount)
		if r.Item.Description != "" {
			fmt.Fprintf(out, "    %s\n", r.Item.Description)
		}
		fmt.Fprintf(out, "    %s\n", r.Item.URL)
	}
	return nil
}

func printStatus(cmd *cobra.Command, st domain.IndexStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "state:     %s\n", st.State)
	fmt.Fprintf(out, "indexed:   %d of %d\n", st.Indexed, st.Total)
	if st.NextPage > 0 {
		fmt.Fprintf(out, "next page: %d\n", st.NextPage)
	}
	if st.LastError != "" {
		fmt.Fprintf(out, "last error: %s\n", st.LastError)
	}
}

func runCheck(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	out := cmd.OutOrStdout()
	for _, w := range a.Config.Validate() {
		fmt.Fprintf(out, "warning: %s\n", w)
	}

	ok, err := a.Source.ValidateCredential(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("github: %w", err)
	case !ok:
		return errors.New("github: token rejected")
	}
	fmt.Fprintln(out, "github: token accepted")

	n, err := a.Store.Count(ctx)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	fmt.Fprintf(out, "store:  %s, %d items, model %s (%d dims)\n", a.Config.VectorBackend, n, a.Embedder.ModelName(), a.Embedder.Dimension())
	return nil
}
