package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/batch"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/cursor"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/forward"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/health"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/notify"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/status"
)

func forwardCmd(a *app) *cobra.Command {
	var (
		afterID    int64
		webhook    string
		statusAddr string
		interval   time.Duration
		once       bool
	)
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Forward new events to a webhook, optionally remediating them",
		Long: "Poll the console for events newer than the last one seen and send each to the " +
			"configured webhook (or the log). Pass the reported watermark as --after-id to resume.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			cfg := a.cfg.Forwarder
			flags := cmd.Flags()
			if flags.Changed("after-id") {
				cfg.StartAfterEventID = afterID
			}
			if webhook != "" {
				cfg.WebhookURL = webhook
			}
			if statusAddr != "" {
				cfg.StatusAddr = statusAddr
			}
			pollEvery := a.cfg.PollInterval()
			if interval > 0 {
				pollEvery = interval
			}

			hs := health.Check(ctx, client, time.Duration(a.cfg.Health.TimeDriftMaxS)*time.Second)
			if !hs.Healthy {
				log.Warn().Strs("issues", hs.Issues).Msg("Health check reported issues")
			}

			fwd := &forward.Forwarder{StripFields: cfg.StripFields}
			if cfg.WebhookURL != "" {
				fwd.Sink = notify.NewWebhookSink(cfg.WebhookURL, time.Duration(cfg.WebhookTimeout)*time.Second)
			} else {
				log.Info().Msg("No webhook configured, events are written to the log")
				fwd.Sink = notify.LogSink{}
			}
			if ops := a.cfg.ForwardOps(); len(ops) > 0 {
				m, err := batch.NewMutator(client, batch.Options{Size: a.cfg.Batch.Size, TracerProvider: a.tp})
				if err != nil {
					return err
				}
				fwd.Mutator, fwd.Ops = m, ops
			}

			loop := cursor.NewLoop(&cursor.Collector{Events: client}, fwd.Handle, cursor.LoopOptions{
				Interval:       pollEvery,
				StartAfter:     cfg.StartAfterEventID,
				TracerProvider: a.tp,
			})

			if once {
				n := loop.Cycle(ctx)
				st := loop.Status()
				report(st, n)
				if st.Failures > 0 {
					return fmt.Errorf("poll cycle failed: %s", st.LastError)
				}
				return nil
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return loop.Run(gctx) })
			if cfg.StatusAddr != "" {
				gin.SetMode(gin.ReleaseMode)
				srv := status.New(loop, status.Options{RateLimit: cfg.StatusRateLimit, TracerProvider: a.tp})
				g.Go(func() error { return srv.Serve(gctx, cfg.StatusAddr) })
			}
			err = g.Wait()
			st := loop.Status()
			report(st, int(st.EventsTotal))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	f := cmd.Flags()
	f.Int64Var(&afterID, "after-id", 0, "Only forward events with a greater id (overrides config)")
	f.StringVar(&webhook, "webhook", "", "Webhook URL (overrides config)")
	f.StringVar(&statusAddr, "status-addr", "", "Serve loop status on this address, e.g. :8090")
	f.DurationVar(&interval, "interval", 0, "Poll interval (overrides config)")
	f.BoolVar(&once, "once", false, "Run a single poll cycle and exit")
	return cmd
}

func report(st cursor.Status, handled int) {
	fmt.Printf("Forwarded %d events in %d cycles; resume with --after-id %d\n", handled, st.Cycles, st.Watermark)
}
