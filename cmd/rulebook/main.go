package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/rulebook/internal/config"
	logpkg "github.com/kailas-cloud/rulebook/internal/logger"
	"github.com/kailas-cloud/rulebook/internal/repository/querylog"
	chiTransport "github.com/kailas-cloud/rulebook/internal/transport/chi"
	authuc "github.com/kailas-cloud/rulebook/internal/usecase/auth"
	ingestuc "github.com/kailas-cloud/rulebook/internal/usecase/ingest"
	"github.com/kailas-cloud/rulebook/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "rulebook",
	Short:         "Question answering over a board game rulebook",
	Long:          "Ingests a rulebook PDF into a vector index and answers authenticated questions about it.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the configured PDF and exit",
	RunE:  runIngest,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a subject",
	RunE:  runToken,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print logged queries, oldest first",
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(version.String())
	},
}

func init() {
	tokenCmd.Flags().String("subject", "", "token subject (user id)")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (default auth.token_ttl_min)")
	_ = tokenCmd.MarkFlagRequired("subject")

	historyCmd.Flags().String("user", "", "only entries of this user")
	historyCmd.Flags().Int("limit", 20, "most recent entries to print (0 for all)")

	rootCmd.AddCommand(serveCmd, ingestCmd, tokenCmd, historyCmd, versionCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadRuntime loads configuration by ENV and builds the logger.
func loadRuntime() (config.Config, *zap.Logger, error) {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting rulebook API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", config.GetEnv()),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_driver", cfg.Index.Driver),
		zap.String("querylog_driver", cfg.QueryLog.Driver),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// the server still starts; queries answer 503 until the index is available
	if err := a.index.Init(ctx); err != nil {
		logger.Error("Vector index initialization failed", zap.Error(err))
	}

	opts := []chiTransport.Option{chiTransport.WithProtectedIngest(cfg.Auth.ProtectIngest)}
	if cfg.Auth.LoginRatePerSec > 0 {
		opts = append(opts, chiTransport.WithLoginLimiter(
			rate.NewLimiter(rate.Limit(cfg.Auth.LoginRatePerSec), cfg.Auth.LoginBurst)))
	}
	server := chiTransport.NewServer(a.auth, a.ingest, a.pipeline, a.queryLog, a.health, logger, opts...)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.index.Init(ctx); err != nil {
		return fmt.Errorf("initialize vector index: %w", err)
	}

	res := a.ingest.IngestFile(ctx)
	if res.Status != ingestuc.StatusSuccess {
		return errors.New(res.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks from %s\n", res.Message, res.ChunksAdded, a.ingest.Path())
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadRuntime()
	if err != nil {
		return err
	}
	subject, _ := cmd.Flags().GetString("subject")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	auth, err := authuc.New(authuc.Config{
		SecretKey: cfg.Auth.SecretKey,
		Algorithm: cfg.Auth.Algorithm,
		TokenTTL:  cfg.Auth.TokenTTL(),
	})
	if err != nil {
		return err
	}
	token, err := auth.Issue(subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadRuntime()
	if err != nil {
		return err
	}
	user, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")

	ctx := cmd.Context()
	store, err := querylog.Open(ctx, querylog.Config{
		Driver: cfg.QueryLog.Driver,
		Path:   cfg.QueryLog.Path,
		DSN:    cfg.QueryLog.DSN,
	})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.List(ctx, user, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tTIME\tQUERY")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, e.UserID, e.Timestamp.Format(time.RFC3339), e.Query)
	}
	return w.Flush()
}
