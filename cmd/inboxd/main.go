package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/inbox/internal/app"
	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/profile"
	"github.com/matheus3301/inbox/internal/store"
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

	fx.New(
		app.Module(app.Params{
			Profile:         name,
			Binary:          "inboxd",
			ConfigPath:      *configFlag,
			WithTransport:   true,
			WithDebugServer: true,
		}),
		fx.Invoke(reportBuckets),
		fx.WithLogger(app.EventLogger),
	).Run()
}

// reportBuckets logs the routing bucket counts whenever the conversation
// list changes.
func reportBuckets(lc fx.Lifecycle, st *store.Store, logger *zap.Logger) {
	events, unsub := st.Subscribe(32)
	quit := make(chan struct{})
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				for {
					select {
					case <-quit:
						return
					case evt := <-events:
						if evt.Kind != bus.KindConversations {
							continue
						}
						counts := st.Groups().Counts()
						fields := make([]zap.Field, 0, len(classify.Order))
						for _, b := range classify.Order {
							fields = append(fields, zap.Int(string(b), counts[b]))
						}
						logger.Info("inbox buckets", fields...)
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			unsub()
			close(quit)
			<-done
			return nil
		},
	})
}
