package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/inbox/internal/app"
	"github.com/matheus3301/inbox/internal/config"
	"github.com/matheus3301/inbox/internal/profile"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/matheus3301/inbox/internal/tui"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.inbox/config.toml)")
	flag.Parse()

	name := profile.Resolve(*profileFlag, *configFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var (
		st     *store.Store
		cfg    *config.Config
		link   *status.Machine
		logger *zap.Logger
	)
	engine := fx.New(
		app.Module(app.Params{
			Profile:       name,
			Binary:        "inboxtui",
			ConfigPath:    *configFlag,
			WithTransport: true,
			LogToFileOnly: true,
		}),
		fx.Populate(&st, &cfg, &link, &logger),
		fx.WithLogger(app.EventLogger),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err := engine.Start(startCtx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ui := tui.NewApp(tui.Options{
		Store:   st,
		Profile: name,
		Agent:   cfg.Inbox.AgentName,
		Link:    link,
		Logger:  logger.Named("tui"),
	})
	runErr := ui.Run()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
