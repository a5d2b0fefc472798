package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/meg-acq-server/internal/metrics"
)

// startMetricsLogger periodically logs the atomic local counter mirror, for
// deployments without a Prometheus scraper.
func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"bytes_data", snap.BytesData,
					"bytes_status", snap.BytesStatus,
					"frames_data", snap.FramesData,
					"frames_status", snap.FramesStatus,
					"sync_loss_data", snap.SyncLossData,
					"sync_loss_status", snap.SyncLossStatus,
					"decode_errors", snap.DecodeErrors,
					"queue_drops", snap.QueueDrops,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
