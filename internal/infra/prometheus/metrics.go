package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "glasscase"

var (
	// ShareResolutions counts public share lookups by outcome
	// (ok, bad_request, not_found, disabled, expired, error).
	ShareResolutions = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "share",
		Name:      "resolutions_total",
		Help:      "Public share-collection requests by outcome.",
	}, []string{"outcome"})

	// ShareIndexRejections counts tokens rejected by the share index without a database read.
	ShareIndexRejections = promauto.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "share",
		Name:      "index_rejections_total",
		Help:      "Share tokens rejected by the bloom index.",
	})

	// ShareCacheLookups counts share cache reads by result (hit, miss, error).
	ShareCacheLookups = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "share",
		Name:      "cache_lookups_total",
		Help:      "Share link cache lookups by result.",
	}, []string{"result"})

	// ShareViewEvents counts share view events by stage (published, stored, dropped).
	ShareViewEvents = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "share",
		Name:      "view_events_total",
		Help:      "Share view events by pipeline stage.",
	}, []string{"stage"})

	// EbayTokenRefreshes counts eBay token refresh attempts by result (refreshed, skipped, failed).
	EbayTokenRefreshes = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "ebay",
		Name:      "token_refreshes_total",
		Help:      "eBay OAuth token refresh attempts by result.",
	}, []string{"result"})

	// EbayListings counts Trading API listing attempts by result (created, rejected, failed).
	EbayListings = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "ebay",
		Name:      "listings_total",
		Help:      "eBay listing attempts by result.",
	}, []string{"result"})
)
