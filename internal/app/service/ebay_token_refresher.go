package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EbayTokenRefresher periodically refreshes eBay tokens that are about to lapse.
type EbayTokenRefresher struct {
	logger   *zap.Logger
	svc      EbayAuthService
	window   time.Duration
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
}

// NewEbayTokenRefresher creates a refresher that every interval renews tokens expiring within window.
func NewEbayTokenRefresher(logger *zap.Logger, svc EbayAuthService, interval, window time.Duration) *EbayTokenRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &EbayTokenRefresher{
		logger:   logger,
		svc:      svc,
		window:   window,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the periodic refresh.
func (r *EbayTokenRefresher) Start() {
	go r.run()
}

// Stop ends the periodic refresh and waits for an in-flight pass to finish.
func (r *EbayTokenRefresher) Stop() {
	close(r.stopChan)
	<-r.done
}

func (r *EbayTokenRefresher) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refreshExpiring()
		case <-r.stopChan:
			r.logger.Info("ebay token refresher stopped")
			return
		}
	}
}

func (r *EbayTokenRefresher) refreshExpiring() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	summary, err := r.svc.RefreshExpiring(ctx, r.window)
	if err != nil {
		r.logger.Error("failed to refresh expiring ebay tokens", zap.Error(err))
		return
	}

	if summary.Refreshed > 0 || summary.Failed > 0 {
		r.logger.Info("refreshed expiring ebay tokens",
			zap.Int("checked", summary.Checked),
			zap.Int("refreshed", summary.Refreshed),
			zap.Int("failed", summary.Failed),
		)
	}
}
