// Package notify публикует уведомления для почтового сервиса.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/mmeshcher/coursemart/internal/model"
)

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher публикует уведомления в exchange RabbitMQ. Ключ маршрутизации совпадает с типом уведомления.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
}

// NewPublisher подключается к RabbitMQ и объявляет topic exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// SendConfirmation публикует подтверждение регистрации, покупки или записи на событие.
func (p *Publisher) SendConfirmation(ctx context.Context, n model.Notification) error {
	return p.publish(ctx, n)
}

// SendVerificationResult публикует результат проверки платежа.
func (p *Publisher) SendVerificationResult(ctx context.Context, n model.Notification) error {
	return p.publish(ctx, n)
}

func (p *Publisher) publish(ctx context.Context, n model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish(p.exchange, string(n.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", n.Kind, err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// LogNotifier записывает уведомления в лог. Используется, когда брокер не настроен.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendConfirmation записывает подтверждение в лог.
func (l *LogNotifier) SendConfirmation(_ context.Context, n model.Notification) error {
	l.log(n)
	return nil
}

// SendVerificationResult записывает результат проверки в лог.
func (l *LogNotifier) SendVerificationResult(_ context.Context, n model.Notification) error {
	l.log(n)
	return nil
}

func (l *LogNotifier) log(n model.Notification) {
	l.logger.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("email", n.Email),
		zap.Int64("purchaseID", n.PurchaseID),
		zap.Int64("eventID", n.EventID),
		zap.String("status", n.Status),
	)
}
