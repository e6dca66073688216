package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"helparo/internal/logger"
	"helparo/internal/model"
	"helparo/internal/pollclient"
)

type args struct {
	RequestID string        `arg:"positional,required" help:"service request id to watch"`
	BaseURL   string        `arg:"--url,env:HELPARO_API_URL" default:"http://localhost:8080" help:"API base URL"`
	Interval  time.Duration `arg:"-i,--interval" default:"5s" help:"poll interval"`
	Timeout   time.Duration `arg:"-t,--timeout" default:"5m" help:"give up after this long"`
	CallTime  time.Duration `arg:"--call-timeout" default:"10s" help:"timeout for a single status call"`
}

func main() {
	var a args
	arg.MustParse(&a)
	os.Exit(run(a))
}

func run(opts args) int {
	log := logger.NewDevelopment()
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := pollclient.NewWatcher(
		pollclient.NewHTTPFetcher(opts.BaseURL, opts.CallTime),
		pollclient.WatcherConfig{
			Interval: opts.Interval,
			Timeout:  opts.Timeout,
			OnSnapshot: func(s model.StatusSnapshot) {
				log.Infow("poll", "status", s.Status, "broadcast", s.BroadcastStatus, "helper", s.AssignedHelperID)
			},
		},
		log,
	)

	out, err := watcher.Watch(ctx, opts.RequestID)
	switch {
	case err == nil:
		log.Infow("Done", "reason", out.Reason.String(), "polls", out.Polls)
		return 0
	case errors.Is(err, pollclient.ErrAcceptanceTimeout):
		log.Warnw("No helper accepted in time", "polls", out.Polls, "timeout", opts.Timeout)
		return 2
	case errors.Is(err, context.Canceled):
		log.Infow("Cancelled", "polls", out.Polls)
		return 130
	default:
		log.Errorw("Watch FAILED", "reason", out.Reason.String(), "err", err)
		return 1
	}
}
