// Package game parses game service flags and launches the service.
package game

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	entrypoint "github.com/corvid-games/tokenrace/internal/platform/cmd"
	"github.com/corvid-games/tokenrace/internal/platform/random"
	"github.com/corvid-games/tokenrace/internal/services/game/api/rest"
	"github.com/corvid-games/tokenrace/internal/services/game/app"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/bot"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/dice"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/room"
	gamesqlite "github.com/corvid-games/tokenrace/internal/services/game/storage/sqlite"
	"github.com/corvid-games/tokenrace/internal/services/game/supervisor"
)

// Config holds game command configuration.
type Config struct {
	Port   int    `env:"TOKENRACE_GAME_PORT" envDefault:"8080"`
	DBPath string `env:"TOKENRACE_GAME_DB_PATH"`

	TurnTimeout      time.Duration `env:"TOKENRACE_GAME_TURN_TIMEOUT" envDefault:"20s"`
	GraceWindow      time.Duration `env:"TOKENRACE_GAME_GRACE_WINDOW" envDefault:"30s"`
	FeedPollInterval time.Duration `env:"TOKENRACE_GAME_FEED_POLL_INTERVAL" envDefault:"250ms"`

	BotRollDelay    time.Duration `env:"TOKENRACE_GAME_BOT_ROLL_DELAY" envDefault:"800ms"`
	BotResolveDelay time.Duration `env:"TOKENRACE_GAME_BOT_RESOLVE_DELAY" envDefault:"1200ms"`
	BotMoveDelay    time.Duration `env:"TOKENRACE_GAME_BOT_MOVE_DELAY" envDefault:"600ms"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The game HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite room database")
	fs.DurationVar(&cfg.TurnTimeout, "turn-timeout", cfg.TurnTimeout, "Wall-clock limit on a human turn")
	fs.DurationVar(&cfg.GraceWindow, "grace-window", cfg.GraceWindow, "Disconnect grace window before forfeit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "game.db")
	}
	return cfg, nil
}

// Run starts the game HTTP service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGame, func(context.Context) error {
		return serve(ctx, cfg)
	})
}

// serve wires the store, bot engine, supervisor, and HTTP surface, then
// blocks until ctx is cancelled.
func serve(ctx context.Context, cfg Config) error {
	logger := log.Default()

	store, err := gamesqlite.Open(cfg.DBPath, cfg.FeedPollInterval)
	if err != nil {
		return fmt.Errorf("open room store: %w", err)
	}
	defer func() { _ = store.Close() }()

	rollerSeed, err := random.NewSeed()
	if err != nil {
		return fmt.Errorf("derive roller seed: %w", err)
	}
	roller := dice.NewRoller(rollerSeed)

	engineSeed, err := random.NewSeed()
	if err != nil {
		return fmt.Errorf("derive engine seed: %w", err)
	}
	engine := bot.NewEngine(store, roller, bot.Delays{
		Roll:    cfg.BotRollDelay,
		Resolve: cfg.BotResolveDelay,
		Move:    cfg.BotMoveDelay,
	}, engineSeed, logger)

	managerSeed, err := random.NewSeed()
	if err != nil {
		return fmt.Errorf("derive manager seed: %w", err)
	}
	manager := supervisor.NewManager(store, engine, settlementLogger(logger), supervisor.Config{
		TurnTimeout: cfg.TurnTimeout,
		GraceWindow: cfg.GraceWindow,
	}, managerSeed, logger)

	serviceSeed, err := random.NewSeed()
	if err != nil {
		return fmt.Errorf("derive service seed: %w", err)
	}
	svc := app.NewService(store, roller, manager, serviceSeed, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: rest.NewServer(svc, logger).Router(),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	go func() {
		if err := manager.Run(runCtx, store); err != nil && !errors.Is(err, context.Canceled) {
			errs <- fmt.Errorf("supervisor: %w", err)
			return
		}
		errs <- nil
	}()
	go func() {
		logger.Printf("game service listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
			return
		}
		errs <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil {
			cancel()
			_ = httpServer.Close()
			return err
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// settlementLogger records finished rooms. The economy and stats ledger is
// a separate service; this process only hands it the outcome.
func settlementLogger(logger *log.Logger) supervisor.Settlement {
	return supervisor.SettlementFunc(func(_ context.Context, snap room.Snapshot) error {
		logger.Printf("room %s finished: mode=%s winners=%v", snap.RoomID, snap.Mode, snap.Winners)
		return nil
	})
}
