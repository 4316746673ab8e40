// Command overachiever syncs a Steam library's achievements into a local or
// server database and serves them to browsers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justestif/go-overachiever/internal/auth"
	"github.com/justestif/go-overachiever/internal/config"
	"github.com/justestif/go-overachiever/internal/db"
	"github.com/justestif/go-overachiever/internal/localdb"
	"github.com/justestif/go-overachiever/internal/logging"
	"github.com/justestif/go-overachiever/internal/steam"
	"github.com/justestif/go-overachiever/internal/sync"
	"github.com/justestif/go-overachiever/internal/web"
)

const usage = `Usage: overachiever [-config path] <command> [flags]

Commands:
  update               sync owned games and scrape recently played games
  scan [-force]        scrape games never scraped (all games with -force)
  history [-limit N]   show run history and recent unlocks
  stats [-include-unplayed]
                       show achievement totals and average completion
  serve                run the HTTP/WebSocket server
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("overachiever", flag.ContinueOnError)
	configPath := global.String("config", "", "path to config file")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "update":
		return runUpdate(ctx, cfg, cmdArgs, out)
	case "scan":
		return runScan(ctx, cfg, cmdArgs, out)
	case "history":
		return runHistory(ctx, cfg, cmdArgs, out)
	case "stats":
		return runStats(ctx, cfg, cmdArgs, out)
	case "serve":
		return runServe(ctx, cfg, cmdArgs)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// openStore opens PostgreSQL when a database URL is configured and the local
// SQLite file otherwise.
func openStore(ctx context.Context, cfg *config.Config) (web.Store, func(), error) {
	if cfg.Database.URL != "" {
		database, err := db.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}
		logging.Debug().Msg("using PostgreSQL store")
		return db.NewStore(database), database.Close, nil
	}

	store, err := localdb.Open(cfg.Database.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	logging.Debug().Str("path", cfg.Database.SQLitePath).Msg("using SQLite store")
	return store, func() { _ = store.Close() }, nil
}

// localSession prepares a local command: it validates the Steam settings and
// opens the store.
func localSession(ctx context.Context, cfg *config.Config) (web.Store, sync.Session, func(), error) {
	if err := cfg.ValidateLocal(); err != nil {
		return nil, sync.Session{}, nil, err
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, sync.Session{}, nil, err
	}
	sess := sync.Session{
		SteamID: cfg.Steam.SteamID,
		Source:  steam.NewClient(cfg.Steam.APIKey, cfg.Steam.HTTPTimeout),
	}
	return store, sess, closeStore, nil
}

func runUpdate(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, sess, closeStore, err := localSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := sync.New(store, sync.WithPacing(cfg.Sync.Pacing))

	last, err := svc.LastUpdate(ctx, sess.SteamID)
	if err != nil {
		return err
	}
	if sync.IsStale(last, time.Now()) {
		fmt.Fprintln(out, staleWarning(last, time.Now()))
	}

	return followFlow(out, func(obs sync.Observer) error {
		_, err := svc.RunUpdate(ctx, sess, obs)
		return err
	})
}

func runScan(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	force := fs.Bool("force", false, "rescan every game, not only never-scraped ones")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, sess, closeStore, err := localSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	pending, err := store.GamesNeverScraped(ctx, sess.SteamID)
	if err != nil {
		return fmt.Errorf("counting games to scan: %w", err)
	}
	games, err := store.AllGames(ctx, sess.SteamID)
	if err != nil {
		return fmt.Errorf("counting games to scan: %w", err)
	}
	// An empty library has never been fetched, so the scan still has work to do.
	if len(games) > 0 && !sync.CanFullScan(len(pending), *force) {
		fmt.Fprintln(out, "Every game has been scanned. Use -force to rescan all games.")
		return nil
	}

	svc := sync.New(store, sync.WithPacing(cfg.Sync.Pacing))
	return followFlow(out, func(obs sync.Observer) error {
		_, err := svc.RunFullScan(ctx, sess, *force, obs)
		return err
	})
}

func runHistory(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", cfg.Sync.LogLimit, "number of log entries to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Steam.SteamID == "" {
		return config.ErrMissingSteamID
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := store.RunHistory(ctx, cfg.Steam.SteamID)
	if err != nil {
		return err
	}
	entries, err := store.LogEntries(ctx, cfg.Steam.SteamID, *limit)
	if err != nil {
		return err
	}

	printHistory(out, runs, entries)
	return nil
}

func runStats(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	includeUnplayed := fs.Bool("include-unplayed", false, "include unplayed games in the average completion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Steam.SteamID == "" {
		return config.ErrMissingSteamID
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	games, err := store.AllGames(ctx, cfg.Steam.SteamID)
	if err != nil {
		return err
	}

	printStats(out, games, sync.ComputeStats(games, *includeUnplayed), *includeUnplayed)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	jwtManager, err := auth.NewJWTManager(cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	if err != nil {
		return err
	}

	var source sync.Source
	if cfg.Steam.APIKey != "" {
		source = steam.NewCachedClient(steam.NewClient(cfg.Steam.APIKey, cfg.Steam.HTTPTimeout), steam.SchemaCacheTTL)
	} else {
		logging.Warn().Msg("STEAM_API_KEY not set; Steam sync is disabled")
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:     *addr,
		Store:    store,
		Sync:     sync.New(store, sync.WithPacing(cfg.Sync.Pacing)),
		Source:   source,
		JWT:      jwtManager,
		OpenID:   auth.New(cfg.Server.CallbackURL),
		LogLimit: cfg.Sync.LogLimit,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run(ctx)
}
