package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/examprep/internal/cache"
	"github.com/pavelanni/examprep/internal/client"
	"github.com/pavelanni/examprep/internal/exam"
	"github.com/pavelanni/examprep/internal/handler"
	appI18n "github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/importer"
	"github.com/pavelanni/examprep/internal/llm"
	"github.com/pavelanni/examprep/internal/llm/prompts"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/scheduler"
	"github.com/pavelanni/examprep/internal/store"
	"github.com/pavelanni/examprep/internal/upload"
)

func main() {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examprep",
		Short: "Exam practice platform for HSA, TSA and chapter tests",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examprep --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examprep.db", "SQLite database path")
	f.String("upload-dir", "uploads", "Directory for uploaded question images")
	f.StringP("lang", "l", "vi", "Default language for messages and tutor prompts (vi, en)")
	f.String("redis-addr", "", "Redis address for the catalog cache (empty disables caching)")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables the tutor)")
	f.String("llm-key", "", "API key for the LLM")
	f.String("llm-model", "gpt-4o-mini", "LLM model name")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /exam)")
	f.Duration("attempt-retention", 2*time.Hour, "How long finished exam attempts are kept in memory")
	addLogFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a questions JSON file into an exam set on a running server",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("server", "http://localhost:8080", "Server base URL, including any base path")
	f.Int64("exam-set", 0, "Target exam set ID (required unless --preview)")
	f.StringToString("image", nil, "Image for a question, as QUESTION_ID=PATH (repeatable)")
	f.Bool("preview", false, "Print the HTML preview instead of importing")
	f.StringP("lang", "l", "", "Language of server messages (vi, en)")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the catalog and all questions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examprep.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examprep")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examprep")
	v.AddConfigPath("/etc/examprep")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var catalog cache.Catalog = cache.Noop{}
	if addr := v.GetString("redis-addr"); addr != "" {
		rc, err := cache.NewRedis(ctx, addr, v.GetString("redis-password"), v.GetInt("redis-db"))
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()
		catalog = rc
		slog.Info("catalog cache enabled", "redis_addr", addr)
	}

	// The tutor is optional; without an endpoint hint requests get 503.
	var tutor handler.Tutor
	if url := v.GetString("llm-url"); url != "" {
		if err := prompts.Load(prompts.FS); err != nil {
			return fmt.Errorf("load prompts: %w", err)
		}
		if !prompts.IsValidLanguage(lang) {
			slog.Warn("no tutor prompts for language, using Vietnamese", "lang", lang)
		}
		llmClient := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), lang)
		if err := llmClient.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		tutor = llmClient
		slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	cfg := model.Config{
		BasePath:         basePath,
		UploadDir:        v.GetString("upload-dir"),
		UploadURL:        "/uploads",
		AttemptRetention: v.GetDuration("attempt-retention"),
	}

	uploads, err := upload.New(cfg.UploadDir, cfg.UploadURL)
	if err != nil {
		return fmt.Errorf("prepare upload dir: %w", err)
	}

	exams := exam.NewManager(exam.MockExams)
	defer exams.Close()

	sched, err := scheduler.New(db, exams, catalog, cfg.AttemptRetention)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()
	// Catch up on deadlines that passed while the server was down.
	sched.ExpireJob()

	h := handler.New(db, exams, tutor, catalog, uploads, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", srv.Addr,
			"lang", lang,
			"base_path", basePath,
			"upload_dir", cfg.UploadDir,
			"tutor", tutor != nil,
			"attempt_retention", cfg.AttemptRetention,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	// Validate locally so obvious mistakes never reach the server.
	if _, err := importer.Parse(data); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	c := client.New(v.GetString("server"), v.GetString("lang"))

	if v.GetBool("preview") {
		html, err := c.PreviewImport(ctx, data)
		if err != nil {
			return fmt.Errorf("preview: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), html)
		return err
	}

	examSetID := v.GetInt64("exam-set")
	if examSetID <= 0 {
		return fmt.Errorf("--exam-set is required")
	}

	images, err := cmd.Flags().GetStringToString("image")
	if err != nil {
		return err
	}
	var files []importer.Attachment
	for qid, path := range images {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read image for question %s: %w", qid, err)
		}
		files = append(files, importer.Attachment{ClientID: qid, Filename: filepath.Base(path), Data: b})
	}
	if err := importer.CheckLimits(files); err != nil {
		return err
	}

	res, err := c.ImportQuestions(ctx, examSetID, data, files)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	slog.Info("import finished", "exam_set_id", examSetID, "count", res.Count, "duplicate", res.Duplicate)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return err
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportCatalog()
	if err != nil {
		return fmt.Errorf("export catalog: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported catalog", "chapters", len(export.Chapters), "exam_sets", len(export.ExamSets))
	return nil
}
