package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/config"
	"github.com/matheus3301/inbox/internal/localdb"
	"github.com/matheus3301/inbox/internal/lock"
	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/metrics"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/profile"
	"github.com/matheus3301/inbox/internal/rest"
	"github.com/matheus3301/inbox/internal/store"
	"go.uber.org/zap"
)

// env is the engine without a live transport: one-shot commands go through
// the same store the daemon and the TUI use.
type env struct {
	cfg    *config.Config
	st     *store.Store
	db     *localdb.DB
	lk     *lock.Lock
	logger *zap.Logger
}

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.inbox/config.toml)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	timeout := flag.Duration("timeout", 30*time.Second, "overall command timeout")
	flag.Parse()

	name := profile.Resolve(*profileFlag, *configFlag)
	if err := profile.ValidateName(name); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	e, err := setup(name, *configFlag)
	if err != nil {
		fatal(err)
	}
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, e, args, *jsonFlag); err != nil {
		e.close()
		fatal(err)
	}
}

func run(ctx context.Context, e *env, args []string, jsonOut bool) error {
	switch args[0] {
	case "status":
		return cmdStatus(ctx, e, jsonOut)
	case "conversations":
		return cmdConversations(ctx, e, jsonOut)
	case "messages":
		if len(args) < 2 {
			return errors.New("usage: inboxctl messages <contact>")
		}
		return cmdMessages(ctx, e, args[1], jsonOut)
	case "send":
		if len(args) < 3 {
			return errors.New("usage: inboxctl send <contact> <text>")
		}
		return cmdSend(ctx, e, args[1], strings.Join(args[2:], " "), jsonOut)
	case "attach":
		if len(args) < 3 {
			return errors.New("usage: inboxctl attach <contact> <path> [caption]")
		}
		return cmdAttach(ctx, e, args[1], args[2], strings.Join(args[3:], " "), jsonOut)
	case "search":
		if len(args) < 2 {
			return errors.New("usage: inboxctl search <text>")
		}
		return cmdSearch(ctx, e, strings.Join(args[1:], " "), jsonOut)
	case "draft":
		if len(args) < 2 {
			return errors.New("usage: inboxctl draft <contact> [text]")
		}
		return cmdDraft(ctx, e, args[1], args[2:])
	case "failed":
		if len(args) < 2 {
			return errors.New("usage: inboxctl failed <contact>")
		}
		return cmdFailed(e, args[1], jsonOut)
	case "tickets":
		if len(args) < 2 {
			return errors.New("usage: inboxctl tickets <contact>")
		}
		return cmdTickets(ctx, e, args[1], jsonOut)
	case "notes":
		if len(args) < 2 {
			return errors.New("usage: inboxctl notes <contact> [text]")
		}
		return cmdNotes(ctx, e, args[1], strings.Join(args[2:], " "), jsonOut)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: inboxctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show the running daemon's state")
	fmt.Fprintln(os.Stderr, "  conversations                   List conversations by bucket")
	fmt.Fprintln(os.Stderr, "  messages <contact>              Show the latest messages")
	fmt.Fprintln(os.Stderr, "  send <contact> <text>           Send a text message")
	fmt.Fprintln(os.Stderr, "  attach <contact> <path> [text]  Send a file")
	fmt.Fprintln(os.Stderr, "  search <text>                   Search all messages")
	fmt.Fprintln(os.Stderr, "  draft <contact> [text]          Show, set or clear (\"\") a draft")
	fmt.Fprintln(os.Stderr, "  failed <contact>                List failed sends")
	fmt.Fprintln(os.Stderr, "  tickets <contact>               List ticket episodes")
	fmt.Fprintln(os.Stderr, "  notes <contact> [text]          List notes, or add one")
}

func setup(name, configPath string) (*env, error) {
	if configPath == "" {
		configPath = profile.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	level, err := logging.ParseLevel(cfg.Debug.LogLevel)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFileOnly(profile.LogPath(name, "inboxctl"), name, level)
	if err != nil {
		return nil, err
	}

	api, err := rest.New(rest.Options{
		BaseURL: cfg.Server.BaseURL,
		Token:   cfg.Server.Token,
		Timeout: cfg.Server.Timeout.Duration,
		Metrics: metrics.New(),
		Logger:  logger.Named("rest"),
	})
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}
	if err := e.openLocal(name); err != nil {
		return nil, err
	}

	opts := store.Options{
		API:              api,
		Logger:           logger.Named("store"),
		PageSize:         cfg.Inbox.PageSize,
		Mode:             model.KindContact,
		AutoCreateTicket: cfg.Inbox.AutoCreateTicket,
		Thresholds: classify.Thresholds{
			UrgentAfter:  cfg.Inbox.UrgentAfter.Duration,
			OverdueAfter: cfg.Inbox.OverdueAfter.Duration,
		},
	}
	if cfg.Inbox.ViewMode == config.ViewTicket {
		opts.Mode = model.KindTicket
	}
	if e.db != nil {
		opts.Local = e.db
	}
	e.st = store.New(opts)
	return e, nil
}

// openLocal opens the profile database. When a daemon or TUI holds the
// profile lock it owns the migrations, so the database is opened as is.
func (e *env) openLocal(name string) error {
	if err := profile.EnsureDir(name); err != nil {
		return err
	}
	path := profile.DBPath(name)
	lk, err := lock.Acquire(profile.Dir(name))
	var held *lock.HeldError
	switch {
	case err == nil:
		e.lk = lk
		db, _, err := localdb.OpenMigrated(path)
		if err != nil {
			return err
		}
		e.db = db
	case errors.As(err, &held):
		e.logger.Info("profile in use, skipping migrations", zap.Int("pid", held.PID))
		db, err := localdb.Open(path)
		if err != nil {
			return err
		}
		if _, err := db.SchemaVersion(); err != nil {
			_ = db.Close()
			return fmt.Errorf("profile %s in use by pid %d: %w", name, held.PID, err)
		}
		e.db = db
	default:
		return err
	}
	return nil
}

func (e *env) close() {
	if e.st != nil {
		e.st.Close()
		e.st = nil
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.logger.Warn("error closing local store", zap.Error(err))
		}
		e.db = nil
	}
	if e.lk != nil {
		if err := e.lk.Release(); err != nil {
			e.logger.Warn("error releasing lock", zap.Error(err))
		}
		e.lk = nil
	}
	_ = e.logger.Sync()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
