package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
)

// Handler обрабатывает тело сообщения. ctx отменяется при остановке потребителя.
type Handler func(ctx context.Context, body []byte) error

// ConsumerMessage запускает потребителя очереди queueName.
// Сообщение подтверждается, если handler вернул nil, иначе возвращается в очередь.
// Возвращённый канал закрывается после отмены ctx, когда завершены все начатые обработчики;
// до этого канал AMQP закрывать нельзя.
func ConsumerMessage(ctx context.Context, log *slog.Logger, ch *amqp.Channel, queueName string, handler Handler) (<-chan struct{}, error) {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("op", op), slog.String("queue", queueName))
	return consume(ctx, log, delivery, handler), nil
}

func consume(ctx context.Context, log *slog.Logger, delivery <-chan amqp.Delivery, handler Handler) <-chan struct{} {
	done := make(chan struct{})
	sem := make(chan struct{}, prefetch)
	var inflight sync.WaitGroup

	go func() {
		defer close(done)
		defer inflight.Wait()
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				sem <- struct{}{}
				inflight.Add(1)
				go func(delivery amqp.Delivery) {
					defer inflight.Done()
					defer func() { <-sem }()
					if err := handler(ctx, delivery.Body); err != nil {
						log.Warn("message handling failed, requeue", sl.Err(err))
						if nackErr := delivery.Nack(false, true); nackErr != nil {
							log.Error("failed to nack message", sl.Err(nackErr))
						}
						return
					}
					if ackErr := delivery.Ack(false); ackErr != nil {
						log.Error("failed to ack message", sl.Err(ackErr))
					}
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}
