package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/claimdesk/claimdesk/internal/api"
	"github.com/claimdesk/claimdesk/internal/checkout"
	"github.com/claimdesk/claimdesk/internal/db"
	"github.com/claimdesk/claimdesk/internal/model"
	"github.com/claimdesk/claimdesk/internal/store"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var cleanup func()

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

func main() {
	fs := flag.NewFlagSet("claimdesk", flag.ContinueOnError)

	var dbPath string
	fs.StringVar(&dbPath, "db", "claimdesk.sqlite3", "")
	fs.StringVar(&dbPath, "d", "claimdesk.sqlite3", "")

	var addr string
	fs.StringVar(&addr, "addr", ":8080", "")
	fs.StringVar(&addr, "a", ":8080", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	var cancelWindow, staleAfter time.Duration
	fs.DurationVar(&cancelWindow, "cancel-window", 5*time.Minute, "")
	fs.DurationVar(&staleAfter, "stale-after", 24*time.Hour, "")

	var trackedFee string
	fs.StringVar(&trackedFee, "tracked-fee", "3.50", "")

	var repeatClaims bool
	fs.BoolVar(&repeatClaims, "repeat-claims", false, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: claimdesk [flags]

Flags:
  -d, -db <path>          SQLite database path (default: claimdesk.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -cancel-window <dur>    buyer self-cancel window (default: 5m)
  -stale-after <dur>      claim staleness horizon (default: 24h)
  -tracked-fee <price>    tracked mail delivery fee (default: 3.50)
  -repeat-claims          allow stacking claims on an already-held item
  -h, -help               show this help and exit
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	fee, err := model.ParsePrice(trackedFee)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -tracked-fee: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging: INFO/WARN → stdout, ERROR → stderr.
	// Optionally also write to a log file.
	closeLog, err := setupLogger(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	firstRun := false
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		firstRun = true
	}

	database, err := db.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	if firstRun {
		password, gatewayKey, err := bootstrapCredentials(database)
		if err != nil {
			slog.Error("failed to bootstrap credentials", "error", err)
			os.Exit(1)
		}
		printInitResult(dbPath, password, gatewayKey)
		fmt.Println()
	}

	slog.Info("database ready", "path", dbPath)

	// JWT secret lives in the settings table, generated on first use.
	jwtSecret, err := store.GetJWTSecret(context.Background(), database)
	if err != nil {
		slog.Error("failed to get JWT secret", "error", err)
		os.Exit(1)
	}

	storeCfg := store.Config{
		CancelWindow:      cancelWindow,
		StaleAfter:        staleAfter,
		AllowRepeatClaims: repeatClaims,
	}
	checkoutCfg := checkout.Config{
		TrackedFee: fee,
		SessionTTL: 48 * time.Hour,
	}

	handler := api.NewRouter(database, jwtSecret, storeCfg, checkoutCfg)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped, closing database")
}

// bootstrapCredentials generates the admin password and gateway key on first
// run. Only the bcrypt hash of the password is stored.
func bootstrapCredentials(database *sql.DB) (password, gatewayKey string, err error) {
	ctx := context.Background()

	password, err = generatePassword(16)
	if err != nil {
		return "", "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hashing password: %w", err)
	}

	if err := store.SetSetting(ctx, database, store.SettingAdminPassHash, string(hash)); err != nil {
		return "", "", fmt.Errorf("storing admin password hash: %w", err)
	}

	gatewayKey, err = store.EnsureGatewayKey(ctx, database)
	if err != nil {
		return "", "", fmt.Errorf("generating gateway key: %w", err)
	}

	return password, gatewayKey, nil
}

// printInitResult prints first-run credentials to stdout.
func printInitResult(dbPath, password, gatewayKey string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Administrator credentials:")
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Chat gateway key:")
	fmt.Printf("  %s\n", gatewayKey)
	fmt.Println()
	fmt.Println("Save these now — they cannot be recovered.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
