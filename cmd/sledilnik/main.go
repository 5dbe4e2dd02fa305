package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/sledilnik/internal/api"
	"github.com/erazemk/sledilnik/internal/cache"
	"github.com/erazemk/sledilnik/internal/config"
	"github.com/erazemk/sledilnik/internal/db"
	"github.com/erazemk/sledilnik/internal/imaging"
	"github.com/erazemk/sledilnik/internal/ledger"
	"github.com/erazemk/sledilnik/internal/live"
	"github.com/erazemk/sledilnik/internal/model"
	"github.com/erazemk/sledilnik/internal/seed"
	"github.com/erazemk/sledilnik/internal/store"
	"github.com/erazemk/sledilnik/internal/tracking"
)

func main() {
	cfg := config.Load()

	fs := flag.NewFlagSet("sledilnik", flag.ContinueOnError)

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "")

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "")

	fs.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	fs.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	fs.StringVar(&cfg.LogLevel, "level", cfg.LogLevel, "")
	fs.StringVar(&cfg.Ledger, "ledger", cfg.Ledger, "")

	var loadDemo bool
	fs.BoolVar(&loadDemo, "seed", false, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: sledilnik [flags]

Flags:
  -d, -db <path>          SQLite database path (default: sledilnik.db, env SLEDILNIK_DB)
  -a, -addr <host:port>   listen address (default: :8080, env SLEDILNIK_ADDR)
  -u, -user <name>        admin username on first run (default: admin, env SLEDILNIK_ADMIN)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -level <level>          debug, info, warn or error (default: info, env SLEDILNIK_LOG)
  -ledger <backend>       chain or kafka (default: chain, env SLEDILNIK_LEDGER)
  -seed                   load the demo catalogue
  -h, -help               show this help and exit

Kafka is configured with KAFKA_BROKERS and KAFKA_TOPIC. Setting REDIS_ADDR
enables the status cache.
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

	closeLog, err := setupLogger(cfg.LogLevel, logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, loadDemo); err != nil {
		slog.Error("fatal", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg config.Config, loadDemo bool) error {
	ctx := context.Background()

	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		database, password, err := initDatabase(cfg.DBPath, cfg.AdminUser)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(cfg.DBPath, cfg.AdminUser, password)
		fmt.Println()
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	var (
		settler tracking.Settler
		chain   *ledger.Chain
	)
	switch cfg.Ledger {
	case config.LedgerChain:
		chain = ledger.NewChain(database)
		settler = chain
	case config.LedgerKafka:
		k := ledger.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ServiceName)
		defer k.Close()
		settler = k
	default:
		return fmt.Errorf("unknown ledger backend %q", cfg.Ledger)
	}
	slog.Info("ledger ready", "backend", cfg.Ledger)

	hub := live.NewHub()
	observers := []tracking.Observer{hub}

	var statusCache *cache.StatusCache
	if cfg.RedisAddr != "" {
		rdb := cache.New(cfg.RedisAddr)
		defer rdb.Close()
		statusCache = cache.NewStatusCache(rdb)
		if err := statusCache.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, status cache will miss", "addr", cfg.RedisAddr, "error", err)
		}
		observers = append(observers, statusCache)
	}

	tracker := tracking.New(store.NewRepository(database), settler, tracking.WithObservers(observers...))

	if loadDemo {
		if _, err := seed.Load(ctx, database, tracker); err != nil {
			return fmt.Errorf("loading demo catalogue: %w", err)
		}
	}

	router := api.NewRouter(api.Config{
		DB:        database,
		JWTSecret: jwtSecret,
		Tracker:   tracker,
		Hub:       hub,
		Chain:     chain,
		Cache:     statusCache,
		Images:    imaging.Default,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
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

	slog.Info("server started", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// initDatabase creates a new database, ensures the schema, and creates the admin user.
func initDatabase(path, adminUsername string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", err
	}

	if err := db.EnsureSchema(database); err != nil {
		return fail(fmt.Errorf("ensuring schema: %w", err))
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail(fmt.Errorf("generating password: %w", err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail(fmt.Errorf("hashing password: %w", err))
	}

	_, err = store.CreateUser(context.Background(), database, adminUsername, "", string(hash), model.RoleAdmin)
	if err != nil {
		return fail(fmt.Errorf("creating admin user: %w", err))
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
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
