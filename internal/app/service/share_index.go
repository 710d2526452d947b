package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/myglasscase/glasscase/internal/app/repository"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ShareIndexSubject carries newly created share tokens between instances.
const ShareIndexSubject = "shares.index.add"

const defaultIndexResync = 10 * time.Minute

// ShareIndex is a probabilistic set of every known share token. A negative
// answer is definitive, so unknown tokens can be rejected without a database
// read. The index answers "possibly present" for every token until a seed
// completes, and again whenever peer announcements may have been missed,
// until the next seed rebuilds it from storage.
type ShareIndex struct {
	mu       sync.RWMutex
	filter   *bloom.BloomFilter
	capacity uint
	fpRate   float64
	ready    bool

	// online is false while announcements from peers cannot be received.
	online bool

	// outages counts connection losses; a seed that overlaps one is not trusted.
	outages uint64

	// pending collects tokens added while a seed builds its replacement filter.
	pending []string
	seeding bool

	resync chan struct{}

	nc     *nats.Conn
	sub    *nats.Subscription
	logger *zap.Logger
}

// NewShareIndex sizes the filter for capacity tokens at the given false positive rate.
func NewShareIndex(capacity uint, fpRate float64, logger *zap.Logger) *ShareIndex {
	if capacity == 0 {
		capacity = 100000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShareIndex{
		filter:   bloom.NewWithEstimates(capacity, fpRate),
		capacity: capacity,
		fpRate:   fpRate,
		online:   true,
		resync:   make(chan struct{}, 1),
		logger:   logger,
	}
}

// Seed rebuilds the filter from every stored token. The index becomes
// authoritative only if no announcement could have been missed meanwhile.
func (i *ShareIndex) Seed(ctx context.Context, repo repository.ShareLinkRepository) error {
	fresh := bloom.NewWithEstimates(i.capacity, i.fpRate)

	i.mu.Lock()
	i.seeding = true
	i.pending = nil
	outages := i.outages
	i.mu.Unlock()

	count := 0
	err := repo.EachShareID(ctx, func(ids []string) error {
		for _, id := range ids {
			fresh.AddString(id)
		}
		count += len(ids)
		return nil
	})

	i.mu.Lock()
	defer i.mu.Unlock()
	i.seeding = false
	if err != nil {
		i.pending = nil
		return fmt.Errorf("seed share index: %w", err)
	}
	for _, id := range i.pending {
		fresh.AddString(id)
	}
	i.pending = nil
	i.filter = fresh
	i.ready = i.online && i.outages == outages

	i.logger.Info("share index seeded", zap.Int("tokens", count), zap.Bool("authoritative", i.ready))
	return nil
}

// Add records a token locally and announces it to peer instances.
func (i *ShareIndex) Add(id string) {
	i.add(id)
	if i.nc == nil {
		return
	}
	if err := i.nc.Publish(ShareIndexSubject, []byte(id)); err != nil {
		i.logger.Warn("failed to announce share token", zap.Error(err))
	}
}

func (i *ShareIndex) add(id string) {
	i.mu.Lock()
	i.filter.AddString(id)
	if i.seeding {
		i.pending = append(i.pending, id)
	}
	i.mu.Unlock()
}

// MightContain reports false only when the token has certainly never been stored.
func (i *ShareIndex) MightContain(id string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.ready {
		return true
	}
	return i.filter.TestString(id)
}

// ConnectionLost stops trusting negative answers; announcements sent while
// the connection is down are not redelivered.
func (i *ShareIndex) ConnectionLost() {
	i.mu.Lock()
	i.online = false
	i.ready = false
	i.outages++
	i.mu.Unlock()
	i.logger.Warn("share index suspended until resync")
}

// ConnectionRestored schedules a rebuild from storage.
func (i *ShareIndex) ConnectionRestored() {
	i.mu.Lock()
	i.online = true
	i.mu.Unlock()
	i.requestResync()
}

func (i *ShareIndex) requestResync() {
	select {
	case i.resync <- struct{}{}:
	default:
	}
}

// Run reseeds the index every interval and whenever a resync is requested,
// until ctx is done.
func (i *ShareIndex) Run(ctx context.Context, repo repository.ShareLinkRepository, interval time.Duration) {
	if interval <= 0 {
		interval = defaultIndexResync
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-i.resync:
		}
		if err := i.Seed(ctx, repo); err != nil && ctx.Err() == nil {
			i.logger.Warn("share index resync failed", zap.Error(err))
		}
	}
}

// Listen subscribes to token announcements from other instances.
func (i *ShareIndex) Listen(nc *nats.Conn) error {
	sub, err := nc.Subscribe(ShareIndexSubject, func(msg *nats.Msg) {
		if len(msg.Data) == 0 {
			return
		}
		i.add(string(msg.Data))
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ShareIndexSubject, err)
	}
	i.nc = nc
	i.sub = sub
	return nil
}

// Close stops listening for announcements.
func (i *ShareIndex) Close() {
	if i.sub != nil {
		_ = i.sub.Unsubscribe()
	}
}
