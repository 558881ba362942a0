package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/exitticket/exitticket/internal/analytics"
	"github.com/exitticket/exitticket/internal/handler"
	appI18n "github.com/exitticket/exitticket/internal/i18n"
	"github.com/exitticket/exitticket/internal/llm"
	"github.com/exitticket/exitticket/internal/model"
	"github.com/exitticket/exitticket/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "exitticket",
		Short: "Generate, publish and analyse lecture exit tickets",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), importResponsesCmd(), ticketsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `exitticket --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "exitticket.db", "Database path (sqlite) or DSN (postgres)")
	f.String("db-driver", "sqlite", "Database driver (sqlite, postgres)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Float32("llm-temperature", llm.DefaultTemperature, "Sampling temperature for question generation")
	f.StringP("lang", "l", "", "Response language (en, ru); empty negotiates from Accept-Language")
	f.String("teacher", "Professor", "Teacher name tickets are published under")
	f.String("session-secret", "", "Secret for signing session cookies (at least 32 bytes)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins for a separate front end (repeatable)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /tickets)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export ticket analytics as JSON",
		RunE:  runExport,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.String("ticket-id", "", "Ticket code to export (default: all tickets of --teacher)")
	f.String("teacher", "Professor", "Teacher whose tickets are exported when no ticket is given")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func importResponsesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-responses FILE...",
		Short: "Import student responses from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImportResponses,
	}
	addStoreFlags(cmd)
	cmd.Flags().String("ticket-id", "", "Ticket code for responses that do not name one")
	return cmd
}

func ticketsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "List a teacher's tickets with response counts",
		RunE:  runTickets,
	}
	addStoreFlags(cmd)
	cmd.Flags().String("teacher", "Professor", "Teacher whose tickets are listed")
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

	v.SetEnvPrefix("EXITTICKET")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("exitticket")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/exitticket")
	v.AddConfigPath("/etc/exitticket")
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

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	driver, err := store.ParseDriver(v.GetString("db-driver"))
	if err != nil {
		return nil, err
	}
	db, err := store.New(ctx, driver, v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// sessionSecret returns the configured secret, or a random one that only
// lives as long as the process.
func sessionSecret(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	slog.Warn("no session secret configured, drafts will not survive a restart")
	return secret, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	defaultLang := lang
	if defaultLang == "" {
		defaultLang = "en"
	}
	if err := appI18n.Init(defaultLang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		float32(v.GetFloat64("llm-temperature")),
	)
	if err := llmClient.Ping(ctx); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", llmClient.Model())

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	secret, err := sessionSecret(v.GetString("session-secret"))
	if err != nil {
		return fmt.Errorf("session secret: %w", err)
	}

	h, err := handler.New(db, llmClient, handler.Config{
		Teacher:       v.GetString("teacher"),
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		SessionSecret: secret,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type"},
			ExposedHeaders:   []string{"Content-Language"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(appI18n.Middleware(lang))

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
	slog.Info("starting server",
		"addr", srv.Addr,
		"model", llmClient.Model(),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"teacher", v.GetString("teacher"),
		"db_driver", db.Driver(),
		"base_path", basePath,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	var doc any
	if id := v.GetString("ticket-id"); id != "" {
		doc, err = db.ExportTicket(ctx, id)
	} else {
		doc, err = db.ExportTeacher(ctx, v.GetString("teacher"))
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
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
	return nil
}

func runImportResponses(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, path := range args {
		if err := importResponses(ctx, db, path, v.GetString("ticket-id")); err != nil {
			return err
		}
	}
	return nil
}

// importResponses loads one JSON array of responses. Files already imported
// with the same content are skipped.
func importResponses(ctx context.Context, db *store.Store, path, defaultTicket string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(ctx, path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("responses file unchanged, skipping", "path", path)
		return nil
	}
	if storedHash != "" {
		slog.Warn("responses file changed since last import, skipping to avoid duplicate responses", "path", path)
		return nil
	}

	var responses []model.StudentResponse
	if err := json.Unmarshal(data, &responses); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	// Every entry is checked before anything is written.
	known := map[string]bool{}
	for i := range responses {
		r := &responses[i]
		if r.TicketID == "" {
			r.TicketID = defaultTicket
		}
		if r.TicketID == "" {
			return fmt.Errorf("%s: response %d has no ticket_id (use --ticket-id)", path, i)
		}
		if !known[r.TicketID] {
			if _, err := db.GetExitTicket(ctx, r.TicketID); err != nil {
				return fmt.Errorf("%s: response %d: %w", path, i, err)
			}
			known[r.TicketID] = true
		}
	}

	if _, err := db.ImportResponses(ctx, path, hash, responses); err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	slog.Info("imported responses", "path", path, "count", len(responses))
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func runTickets(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	overviews, err := analytics.NewEngine(db).Overviews(ctx, v.GetString("teacher"))
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	return writeTicketTable(cmd.OutOrStdout(), overviews)
}

func writeTicketTable(out io.Writer, overviews []model.TicketOverview) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tSTATUS\tCREATED\tQUESTIONS\tRESPONSES\tAVERAGE\tTITLE")
	for _, o := range overviews {
		t := o.Ticket
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.2f%%\t%s\n",
			t.TicketID, t.Status, t.CreatedAt.Local().Format("2006-01-02 15:04"),
			t.TotalQuestions, o.TotalResponses, o.AverageScore, t.Title)
	}
	return tw.Flush()
}
