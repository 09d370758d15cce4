// Package notify публикует уведомления об изменениях баланса после фиксации транзакции.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mmeshcher/triclub-points/internal/model"
)

const (
	// SubjectRecorded — тема уведомлений о новых событиях начисления.
	SubjectRecorded = "triclub.points.recorded"
	// SubjectReversed — тема уведомлений об отменённых событиях.
	SubjectReversed = "triclub.points.reversed"
)

// Publisher отправляет уведомления об изменении баланса.
type Publisher interface {
	Publish(ctx context.Context, n model.PointsNotification) error
	Close() error
}

// Subject возвращает тему для уведомления.
func Subject(n model.PointsNotification) string {
	if n.Reversed {
		return SubjectReversed
	}
	return SubjectRecorded
}

type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher публикует уведомления в core NATS без подтверждения доставки.
type NATSPublisher struct {
	conn   conn
	logger *zap.Logger
}

// NewNATSPublisher подключается к серверу NATS.
func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("triclub-points"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
				return
			}
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			logger.Error("nats async error", fields...)
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info("connected to nats", zap.String("url", nc.ConnectedUrl()))
	return newNATSPublisher(nc, logger), nil
}

func newNATSPublisher(c conn, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{conn: c, logger: logger}
}

// Publish сериализует уведомление в JSON и отправляет его в тему по типу изменения.
func (p *NATSPublisher) Publish(ctx context.Context, n model.PointsNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := Subject(n)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	p.logger.Debug("notification published",
		zap.String("subject", subject),
		zap.Int64("event_id", n.EventID),
		zap.Int("size", len(data)),
	)
	return nil
}

// Close дожидается отправки буфера и закрывает соединение.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}

// Nop используется, когда NATS не настроен.
type Nop struct{}

func (Nop) Publish(context.Context, model.PointsNotification) error { return nil }

func (Nop) Close() error { return nil }
