package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/infra/prometheus"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const publishAckTimeout = 5 * time.Second

// ViewPublisher emits a view event for a successfully resolved share link.
type ViewPublisher interface {
	Publish(link *model.ShareLink, ip, userAgent string) error
}

// ShareViewPublisher publishes share view events to NATS JetStream.
type ShareViewPublisher struct {
	js     nats.JetStreamContext
	salt   string
	logger *zap.Logger
	now    func() time.Time
}

// NewShareViewPublisher creates a publisher that hashes viewer IPs with salt.
func NewShareViewPublisher(js nats.JetStreamContext, salt string, logger *zap.Logger) *ShareViewPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShareViewPublisher{js: js, salt: salt, logger: logger, now: time.Now}
}

// Publish sends the event without waiting for the stream acknowledgement.
func (p *ShareViewPublisher) Publish(link *model.ShareLink, ip, userAgent string) error {
	event := p.newEvent(link, ip, userAgent)

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	future, err := p.js.PublishAsync(model.ShareViewStreamSubject, data, nats.MsgId(event.ID.String()))
	if err != nil {
		prometheus.ShareViewEvents.WithLabelValues("dropped").Inc()
		return err
	}

	go p.awaitAck(future, event.ID)
	return nil
}

func (p *ShareViewPublisher) newEvent(link *model.ShareLink, ip, userAgent string) model.ShareViewEvent {
	return model.ShareViewEvent{
		ID:            uuid.New(),
		ShareLinkID:   link.ID,
		UniqueShareID: link.UniqueShareID,
		IPHash:        HashIP(p.salt, ip),
		UserAgent:     userAgent,
		ViewedAt:      p.now().UTC(),
	}
}

func (p *ShareViewPublisher) awaitAck(future nats.PubAckFuture, id uuid.UUID) {
	select {
	case <-future.Ok():
		prometheus.ShareViewEvents.WithLabelValues("published").Inc()
	case err := <-future.Err():
		prometheus.ShareViewEvents.WithLabelValues("dropped").Inc()
		p.logger.Warn("share view event not acknowledged", zap.String("id", id.String()), zap.Error(err))
	case <-time.After(publishAckTimeout):
		prometheus.ShareViewEvents.WithLabelValues("dropped").Inc()
		p.logger.Warn("share view event ack timed out", zap.String("id", id.String()))
	}
}

// HashIP returns the hex SHA-256 of salt and ip. An empty ip hashes to "".
func HashIP(salt, ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(salt + "|" + ip))
	return hex.EncodeToString(sum[:])
}
