package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/libertai/ltai-points/app/points"
)

func main() {
	opts := points.Options{}
	pflag.CountVarP(&opts.Verbosity, "verbose", "v", "increase log verbosity")
	pflag.BoolVarP(&opts.Publish, "publish", "p", false, "publish the results to the aleph network")
	pflag.BoolVarP(&opts.Mint, "mint", "m", false, "mint outstanding tokens")
	pflag.StringVar(&opts.Schedule, "schedule", "", "cron expression to keep re-running on")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := points.Initialize(ctx, opts)
	defer app.Stop()

	app.Start(ctx)
}
