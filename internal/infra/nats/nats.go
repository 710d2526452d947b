package natsclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/myglasscase/glasscase/config"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const defaultConnectTimeout = 5 * time.Second

// ConnectionObserver is told when core NATS messages may have been missed.
// Core subscriptions are at-most-once, so anything published while the
// connection was down or a subscriber lagged is gone.
type ConnectionObserver interface {
	ConnectionLost()
	ConnectionRestored()
}

// Connect creates a NATS connection (with JetStream available) using application config.
func Connect(cfg config.NATSConfig, log *zap.Logger, observers ...ConnectionObserver) (*nats.Conn, nats.JetStreamContext, error) {
	if log == nil {
		log = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Timeout(defaultConnectTimeout),
		nats.Name("glasscase"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
			for _, o := range observers {
				o.ConnectionLost()
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
			for _, o := range observers {
				o.ConnectionRestored()
			}
		}),
		nats.ErrorHandler(asyncErrorHandler(log, observers)),
	}

	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	url := buildURL(cfg)

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("nats: init jetstream: %w", err)
	}

	return conn, js, nil
}

// EnsureStream creates the stream described by sc unless one with that name already exists.
func EnsureStream(js nats.JetStreamContext, sc *nats.StreamConfig) error {
	_, err := js.StreamInfo(sc.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("nats: stream info %s: %w", sc.Name, err)
	}
	if _, err := js.AddStream(sc); err != nil {
		return fmt.Errorf("nats: add stream %s: %w", sc.Name, err)
	}
	return nil
}

func asyncErrorHandler(log *zap.Logger, observers []ConnectionObserver) nats.ErrHandler {
	return func(_ *nats.Conn, sub *nats.Subscription, err error) {
		subject := ""
		if sub != nil {
			subject = sub.Subject
		}
		log.Warn("nats async error", zap.String("subject", subject), zap.Error(err))
		if !errors.Is(err, nats.ErrSlowConsumer) {
			return
		}
		// Dropped messages cannot be recovered; treat it as a short outage.
		for _, o := range observers {
			o.ConnectionLost()
			o.ConnectionRestored()
		}
	}
}

func buildURL(cfg config.NATSConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 4222
	}
	return fmt.Sprintf("nats://%s:%d", host, port)
}
