package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// AuthOutcomeStatus is the terminal state of one authorization attempt.
type AuthOutcomeStatus string

const (
	AuthConnected AuthOutcomeStatus = "connected"
	AuthFailed    AuthOutcomeStatus = "failed"
	AuthCancelled AuthOutcomeStatus = "cancelled"
)

// AuthOutcome is delivered to everyone waiting on a state.
type AuthOutcome struct {
	Status    AuthOutcomeStatus `json:"status"`
	Error     string            `json:"error,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

// AuthNotifier fans authorization outcomes out to waiters, possibly on other instances.
type AuthNotifier interface {
	Notify(ctx context.Context, state string, outcome AuthOutcome) error
	Subscribe(state string) (AuthSubscription, error)
}

// AuthSubscription receives at most one outcome per Notify.
type AuthSubscription interface {
	C() <-chan AuthOutcome
	Close()
}

// stateDigest keeps raw state tokens out of subjects and cache keys.
func stateDigest(state string) string {
	sum := sha256.Sum256([]byte(state))
	return hex.EncodeToString(sum[:16])
}

func authSubject(state string) string {
	return "ebay.auth." + stateDigest(state)
}

// NATSAuthNotifier publishes outcomes on core NATS subjects.
type NATSAuthNotifier struct {
	nc     *nats.Conn
	logger *zap.Logger
}

func NewNATSAuthNotifier(nc *nats.Conn, logger *zap.Logger) *NATSAuthNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSAuthNotifier{nc: nc, logger: logger}
}

func (n *NATSAuthNotifier) Notify(_ context.Context, state string, outcome AuthOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(authSubject(state), data); err != nil {
		return fmt.Errorf("publish auth outcome: %w", err)
	}
	return nil
}

func (n *NATSAuthNotifier) Subscribe(state string) (AuthSubscription, error) {
	ch := make(chan AuthOutcome, 1)
	sub, err := n.nc.Subscribe(authSubject(state), func(msg *nats.Msg) {
		var outcome AuthOutcome
		if err := json.Unmarshal(msg.Data, &outcome); err != nil {
			n.logger.Warn("malformed auth outcome", zap.Error(err))
			return
		}
		select {
		case ch <- outcome:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe auth outcome: %w", err)
	}
	return &natsAuthSubscription{sub: sub, ch: ch}, nil
}

type natsAuthSubscription struct {
	sub *nats.Subscription
	ch  chan AuthOutcome
}

func (s *natsAuthSubscription) C() <-chan AuthOutcome { return s.ch }

func (s *natsAuthSubscription) Close() { _ = s.sub.Unsubscribe() }

// MemoryAuthNotifier delivers outcomes within a single process.
type MemoryAuthNotifier struct {
	mu   sync.Mutex
	subs map[string]map[*memoryAuthSubscription]struct{}
}

func NewMemoryAuthNotifier() *MemoryAuthNotifier {
	return &MemoryAuthNotifier{subs: make(map[string]map[*memoryAuthSubscription]struct{})}
}

func (n *MemoryAuthNotifier) Notify(_ context.Context, state string, outcome AuthOutcome) error {
	key := stateDigest(state)
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs[key] {
		select {
		case sub.ch <- outcome:
		default:
		}
	}
	return nil
}

func (n *MemoryAuthNotifier) Subscribe(state string) (AuthSubscription, error) {
	key := stateDigest(state)
	sub := &memoryAuthSubscription{ch: make(chan AuthOutcome, 1)}
	sub.close = func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[key], sub)
		if len(n.subs[key]) == 0 {
			delete(n.subs, key)
		}
	}

	n.mu.Lock()
	if n.subs[key] == nil {
		n.subs[key] = make(map[*memoryAuthSubscription]struct{})
	}
	n.subs[key][sub] = struct{}{}
	n.mu.Unlock()
	return sub, nil
}

type memoryAuthSubscription struct {
	ch    chan AuthOutcome
	once  sync.Once
	close func()
}

func (s *memoryAuthSubscription) C() <-chan AuthOutcome { return s.ch }

func (s *memoryAuthSubscription) Close() { s.once.Do(s.close) }
