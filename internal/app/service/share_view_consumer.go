package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	apprepository "github.com/myglasscase/glasscase/internal/app/repository"
	natsclient "github.com/myglasscase/glasscase/internal/infra/nats"
	"github.com/myglasscase/glasscase/internal/infra/prometheus"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	viewFetchBatch   = 10
	viewFetchMaxWait = 5 * time.Second

	viewFetchBackoffMin = 500 * time.Millisecond
	viewFetchBackoffMax = 30 * time.Second
)

type ackAction int

const (
	ackMsg ackAction = iota
	nakMsg
	termMsg
)

// fetcher is the part of a pull subscription the consume loop uses.
type fetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// ShareViewConsumer stores share view events delivered by NATS JetStream.
type ShareViewConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	repo   apprepository.ShareViewRepository
	done   chan struct{}

	// Delay after a failed fetch, doubled per consecutive failure.
	backoffMin time.Duration
	backoffMax time.Duration
}

// NewShareViewConsumer creates a new share view consumer.
func NewShareViewConsumer(js nats.JetStreamContext, logger *zap.Logger, repo apprepository.ShareViewRepository) *ShareViewConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShareViewConsumer{
		js:         js,
		logger:     logger,
		repo:       repo,
		done:       make(chan struct{}),
		backoffMin: viewFetchBackoffMin,
		backoffMax: viewFetchBackoffMax,
	}
}

// ShareViewStreamConfig describes the stream that buffers view events.
func ShareViewStreamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:       model.ShareViewStreamName,
		Subjects:   []string{model.ShareViewStreamSubject},
		MaxBytes:   model.ShareViewStreamMaxBytes,
		MaxAge:     model.ShareViewStreamMaxAge,
		Duplicates: 2 * time.Minute,
	}
}

// Start ensures the stream and durable consumer exist, then consumes until ctx is done.
func (c *ShareViewConsumer) Start(ctx context.Context) error {
	if err := natsclient.EnsureStream(c.js, ShareViewStreamConfig()); err != nil {
		return err
	}

	if _, err := c.js.ConsumerInfo(model.ShareViewStreamName, model.ShareViewConsumerName); err != nil {
		if !errors.Is(err, nats.ErrConsumerNotFound) {
			return fmt.Errorf("consumer info: %w", err)
		}
		_, err = c.js.AddConsumer(model.ShareViewStreamName, &nats.ConsumerConfig{
			Durable:       model.ShareViewConsumerName,
			FilterSubject: model.ShareViewStreamSubject,
			AckPolicy:     nats.AckExplicitPolicy,
			AckWait:       30 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ShareViewStreamSubject, model.ShareViewConsumerName, nats.Bind(model.ShareViewStreamName, model.ShareViewConsumerName))
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		defer close(c.done)
		defer func() { _ = sub.Unsubscribe() }()
		c.consume(ctx, sub)
	}()
	return nil
}

// Done is closed once the consume loop has exited.
func (c *ShareViewConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *ShareViewConsumer) consume(ctx context.Context, sub fetcher) {
	var backoff time.Duration
	for {
		if ctx.Err() != nil {
			c.logger.Info("share view consumer stopped")
			return
		}

		fetchCtx, cancel := context.WithTimeout(ctx, viewFetchMaxWait)
		msgs, err := sub.Fetch(viewFetchBatch, nats.Context(fetchCtx))
		cancel()
		if err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			backoff = c.nextBackoff(backoff)
			c.logger.Error("failed to fetch messages", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		for _, msg := range msgs {
			switch c.process(ctx, msg.Data) {
			case ackMsg:
				_ = msg.Ack()
			case nakMsg:
				_ = msg.Nak()
			case termMsg:
				_ = msg.Term()
			}
		}
	}
}

func (c *ShareViewConsumer) nextBackoff(prev time.Duration) time.Duration {
	if prev < c.backoffMin {
		return c.backoffMin
	}
	if next := 2 * prev; next < c.backoffMax {
		return next
	}
	return c.backoffMax
}

// process stores one encoded event and decides how the message is acknowledged.
func (c *ShareViewConsumer) process(ctx context.Context, data []byte) ackAction {
	var event model.ShareViewEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Error("failed to unmarshal share view event", zap.Error(err))
		prometheus.ShareViewEvents.WithLabelValues("malformed").Inc()
		return termMsg
	}
	if event.ID == uuid.Nil || event.ShareLinkID == uuid.Nil {
		c.logger.Error("share view event missing ids")
		prometheus.ShareViewEvents.WithLabelValues("malformed").Inc()
		return termMsg
	}

	if err := c.repo.Create(ctx, &event); err != nil {
		c.logger.Error("failed to store share view event",
			zap.String("id", event.ID.String()),
			zap.String("share_link_id", event.ShareLinkID.String()),
			zap.Error(err))
		return nakMsg
	}

	c.logger.Debug("share view event stored",
		zap.String("id", event.ID.String()),
		zap.String("share_link_id", event.ShareLinkID.String()),
		zap.Time("viewed_at", event.ViewedAt),
	)
	prometheus.ShareViewEvents.WithLabelValues("stored").Inc()
	return ackMsg
}
