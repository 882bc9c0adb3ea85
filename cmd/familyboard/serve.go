package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	appLog "familyboard/internal/log"
	"familyboard/internal/web"
)

// pruneFactor sets how many TTLs an expired entry is kept as
// last-known-good before the refresh job drops it.
const pruneFactor = 12

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and refresh the board on a schedule",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", "", "HTTP listen address (overrides config if set)")
	rootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	appLog.Info("familyboard starting", "version", version)

	a, err := loadApp()
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		a.cfg.Listen = listen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(a.cfg, a.svc, a.metrics)

	sched := cron.New(cron.WithLocation(a.loc))
	if _, err := sched.AddFunc(a.cfg.RefreshCron, func() { a.refresh(ctx, srv) }); err != nil {
		return err
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	// Warm the cache so the first page load does not wait on providers.
	go a.refresh(ctx, srv)

	err = srv.Run(ctx)
	appLog.Info("familyboard exiting")
	return err
}

// refresh rebuilds the default board, hands it to the server and drops
// cache entries too old to be useful as last-known-good.
func (a *app) refresh(ctx context.Context, srv *web.Server) {
	start := time.Now()
	b, err := a.svc.Board(ctx, start, a.cfg.Days)
	if err != nil {
		appLog.Error("refresh failed", err)
		return
	}
	srv.StoreBoard(b, a.cfg.Days)

	ttl := time.Duration(a.cfg.CacheTTLSeconds) * time.Second
	pruned := a.svc.Prune(ttl * pruneFactor)
	a.metrics.Refreshed(time.Now())

	stale := 0
	for _, st := range b.Sources {
		if st.Stale || st.Error != "" {
			stale++
		}
	}
	appLog.Info("board refreshed",
		"from", b.From.Format("2006-01-02"),
		"days", len(b.Days),
		"sources", len(b.Sources),
		"degraded", stale,
		"pruned", pruned,
		"took", time.Since(start).Round(time.Millisecond),
	)
}
