package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/flashdeck/internal/config"
	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/importer"
	"github.com/conorfennell/flashdeck/internal/logging"
	"github.com/conorfennell/flashdeck/internal/scheduler"
	"github.com/conorfennell/flashdeck/internal/storage"
	"github.com/conorfennell/flashdeck/internal/web"
)

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:           "flashdeck",
		Short:         "Spaced-repetition flashcards scheduled with SM-2",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(dueCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func openStore() (*storage.DB, error) {
	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	slog.Debug("database opened", "path", cfg.DB.Path)
	return db, nil
}

func userFlag(cmd *cobra.Command, user *string) {
	cmd.Flags().StringVarP(user, "user", "u", os.Getenv("USER"), "owner of the cards")
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			svc := scheduler.New(db, scheduler.WithLogger(slog.Default()))
			server := &http.Server{
				Addr:         cfg.HTTP.Addr,
				Handler:      web.WithLogging(web.NewServer(svc, cfg.Review.DefaultLimit)),
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
			}
			return serve(ctx, server, ln, shutdownTimeout)
		},
	}
}

const shutdownTimeout = 5 * time.Second

// serve runs server on ln until ctx is cancelled, then drains in-flight
// requests. It returns only after the drain finishes, so callers may close
// the store.
func serve(ctx context.Context, server *http.Server, ln net.Listener, drain time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", ln.Addr().String(), "env_overrides", config.EnvKeys())
		serveErr <- server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down", "drain", drain)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server closed")
	return nil
}

func addCmd() *cobra.Command {
	var user, deck string

	cmd := &cobra.Command{
		Use:   "add <front> <back>",
		Short: "Create a flashcard",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			card, err := scheduler.New(db).Create(cmd.Context(), user, domain.CardInput{
				Front:    args[0],
				Back:     args[1],
				DeckName: deck,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Added flashcard %d, due now.\n", card.ID)
			return nil
		},
	}
	userFlag(cmd, &user)
	cmd.Flags().StringVar(&deck, "deck", "", "deck name")
	return cmd
}

func importCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "import <dir-or-git-url>",
		Short: "Import Q:/A: markdown decks from a directory or git repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			im := importer.New(scheduler.New(db), db, cfg.Import.ReposDir).WithProgress(os.Stderr)
			report, err := im.Import(cmd.Context(), user, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Found %d cards in %d files: %d created, %d already present, %d errors.\n",
				report.Parsed, report.Files, report.Created, report.Skipped, len(report.Errors))
			if len(report.Errors) > 0 {
				fmt.Println("\nErrors:")
				for _, e := range report.Errors {
					fmt.Printf("- %s\n", e)
				}
			}
			return nil
		},
	}
	userFlag(cmd, &user)
	return cmd
}

func dueCmd() *cobra.Command {
	var (
		user  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List cards due for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if limit == 0 {
				limit = cfg.Review.DefaultLimit
			}
			cards, err := scheduler.New(db).ListDue(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			if len(cards) == 0 {
				fmt.Println("No flashcards due.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDECK\tPHASE\tDUE\tFRONT")
			for _, c := range cards {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
					c.ID, c.DeckName, c.Phase(), c.DueDate.Local().Format("2006-01-02 15:04"), truncate(c.Front, 60))
			}
			return tw.Flush()
		},
	}
	userFlag(cmd, &user)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum cards to list (default from review.default_limit)")
	return cmd
}

func reviewCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "review <id> <quality>",
		Short: "Grade a card: 0-5 or blackout, incorrect, hard, good, easy, perfect",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid flashcard id %q", args[0])
			}
			q, err := domain.ParseQuality(args[1])
			if err != nil {
				return err
			}

			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := scheduler.New(db).Review(cmd.Context(), user, id, q)
			if err != nil {
				return err
			}
			fmt.Printf("Graded %s. Next review in %d day(s) on %s (ease %.2f).\n",
				q, res.NewInterval, res.NewDueDate.Local().Format("2006-01-02"), res.NewEaseFactor)
			return nil
		},
	}
	userFlag(cmd, &user)
	return cmd
}

func statsCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := scheduler.New(db).Stats(cmd.Context(), user)
			if err != nil {
				return err
			}
			fmt.Printf("Total: %d\nDue: %d\nReviewed: %d\nAverage ease: %.2f\n",
				st.TotalCards, st.DueCount, st.ReviewedCount, st.AvgEaseFactor)
			return nil
		},
	}
	userFlag(cmd, &user)
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}
