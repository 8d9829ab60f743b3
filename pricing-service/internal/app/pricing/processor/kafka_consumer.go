package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pkg/metrics"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/service"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const serviceName = "pricing-service"

// errPoisonMessage - сообщение, которое не будет обработано ни при какой повторной попытке.
// Такие сообщения коммитятся, чтобы не блокировать партицию.
var errPoisonMessage = errors.New("poison message")

const (
	retryBackoffMin = 500 * time.Millisecond
	retryBackoffMax = 30 * time.Second
)

// messageReader - часть kafka.Reader, которую использует consumer
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

// PriceUpserter - часть PriceService, нужная consumer'у
type PriceUpserter interface {
	UpsertPrice(ctx context.Context, submission entity.PriceSubmission) (*entity.Item, error)
}

// KafkaConsumer читает наблюдения цен из топика price_observations
// и применяет их через PriceService
type KafkaConsumer struct {
	reader     messageReader
	prices     PriceUpserter
	topic      string
	groupID    string
	log        zerolog.Logger
	backoffMin time.Duration
	backoffMax time.Duration
	stopChan   chan struct{}
	doneChan   chan struct{}
}

func NewKafkaConsumer(
	brokers []string,
	topic string,
	groupID string,
	minBytes int,
	maxBytes int,
	prices PriceUpserter,
) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		StartOffset:    kafka.FirstOffset, // новая группа читает топик с начала
		CommitInterval: time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: 1 * time.Second,
	})

	return &KafkaConsumer{
		reader:     reader,
		prices:     prices,
		topic:      topic,
		groupID:    groupID,
		log:        logger.Component("kafka_consumer"),
		backoffMin: retryBackoffMin,
		backoffMax: retryBackoffMax,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// Start запускает чтение в отдельной горутине
func (c *KafkaConsumer) Start(ctx context.Context) {
	c.log.Info().Str("topic", c.topic).Str("group_id", c.groupID).Msg("starting kafka consumer")
	go c.consume(ctx)
}

// Stop дожидается завершения текущего сообщения и закрывает reader
func (c *KafkaConsumer) Stop() {
	c.log.Info().Msg("stopping kafka consumer")
	close(c.stopChan)
	<-c.doneChan
	if err := c.reader.Close(); err != nil {
		c.log.Warn().Err(err).Msg("failed to close kafka reader")
	}
	c.log.Info().Msg("kafka consumer stopped")
}

func (c *KafkaConsumer) consume(ctx context.Context) {
	defer close(c.doneChan)

	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		message, err := c.reader.FetchMessage(readCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			metrics.RecordKafkaError(serviceName, c.topic, "fetch")
			c.log.Error().Err(err).Msg("failed to fetch message")
			time.Sleep(time.Second)
			continue
		}

		// FetchMessage уже сдвинул offset reader'а: следующий fetch вернет
		// следующее сообщение, поэтому временные ошибки повторяем на месте
		if !c.handleWithRetry(ctx, message) {
			// offset не закоммичен, после перезапуска группа прочитает сообщение снова
			return
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			metrics.RecordKafkaError(serviceName, c.topic, "commit")
			c.log.Error().Err(err).Int64("offset", message.Offset).Msg("failed to commit message")
		}
	}
}

// handleWithRetry повторяет обработку, пока она не завершится успехом или poison-ошибкой.
// false означает, что consumer остановлен до успешной обработки.
func (c *KafkaConsumer) handleWithRetry(ctx context.Context, message kafka.Message) bool {
	backoff := c.backoffMin
	for attempt := 1; ; attempt++ {
		if c.handle(ctx, message) {
			return true
		}

		c.log.Warn().
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Int64("offset", message.Offset).
			Msg("retrying price observation")

		timer := time.NewTimer(backoff)
		select {
		case <-c.stopChan:
			timer.Stop()
			return false
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		backoff = min(backoff*2, c.backoffMax)
	}
}

// handle обрабатывает сообщение и сообщает, можно ли коммитить offset
func (c *KafkaConsumer) handle(ctx context.Context, message kafka.Message) bool {
	start := time.Now()
	err := c.processMessage(ctx, message)
	metrics.RecordKafkaMessageConsumed(serviceName, c.topic, c.groupID, time.Since(start))

	switch {
	case err == nil:
		metrics.ObservationsProcessed.WithLabelValues("applied").Inc()
		return true
	case errors.Is(err, errPoisonMessage):
		metrics.ObservationsProcessed.WithLabelValues("skipped").Inc()
		c.log.Warn().Err(err).
			Int("partition", message.Partition).
			Int64("offset", message.Offset).
			Msg("skipping price observation")
		return true
	default:
		metrics.ObservationsProcessed.WithLabelValues("failed").Inc()
		metrics.RecordKafkaError(serviceName, c.topic, "process")
		c.log.Error().Err(err).
			Int("partition", message.Partition).
			Int64("offset", message.Offset).
			Msg("failed to process price observation")
		return false
	}
}

func (c *KafkaConsumer) processMessage(ctx context.Context, message kafka.Message) error {
	var observation entity.PriceObservation
	if err := json.Unmarshal(message.Value, &observation); err != nil {
		return fmt.Errorf("%w: failed to unmarshal price observation: %w", errPoisonMessage, err)
	}
	if observation.ItemID == "" || observation.StoreID == "" {
		return fmt.Errorf("%w: item_id and store_id are required", errPoisonMessage)
	}

	c.log.Debug().
		Str("item_id", observation.ItemID).
		Str("store_id", observation.StoreID).
		Float64("current_price", observation.CurrentPrice).
		Int64("offset", message.Offset).
		Msg("received price observation")

	if _, err := c.prices.UpsertPrice(ctx, observation.Submission()); err != nil {
		if errors.Is(err, service.ErrInvalidPrice) || errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("%w: %w", errPoisonMessage, err)
		}
		return fmt.Errorf("failed to apply price observation: %w", err)
	}

	return nil
}

func (c *KafkaConsumer) GetStats() kafka.ReaderStats {
	return c.reader.Stats()
}
