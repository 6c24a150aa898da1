// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenPSG/mea/config"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Producer is the subset of *kafka.Producer used by the publisher.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// Option configures a KafkaPublisher.
type Option func(*KafkaPublisher)

// WithLogger sets the publisher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

// WithRetry sets the retry count and base backoff for full producer queues.
func WithRetry(maxRetries int, baseBackoff time.Duration) Option {
	return func(p *KafkaPublisher) {
		p.maxRetries, p.baseBackoff = maxRetries, baseBackoff
	}
}

// WithFlushTimeout bounds the wait for outstanding deliveries on Close.
func WithFlushTimeout(timeout time.Duration) Option {
	return func(p *KafkaPublisher) {
		p.flushTimeout = timeout
	}
}

// KafkaPublisher publishes reports and tracks their delivery.
type KafkaPublisher struct {
	producer   Producer
	topic      string
	logger     *slog.Logger
	deliveries chan kafka.Event
	wg         sync.WaitGroup
	closeOnce  sync.Once

	sent     atomic.Int64 // Accepted by the producer queue
	acked    atomic.Int64
	failed   atomic.Int64 // Queued but not delivered
	rejected atomic.Int64 // Never queued

	maxRetries   int
	baseBackoff  time.Duration
	flushTimeout time.Duration
}

// NewKafkaPublisher connects a producer using cfg.
func NewKafkaPublisher(cfg *config.KafkaConfig, opts ...Option) (*KafkaPublisher, error) {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":  cfg.BootstrapServers,
		"security.protocol":  cfg.SecurityProtocol,
		"compression.type":   cfg.CompressionType,
		"acks":               cfg.Acks,
		"linger.ms":          cfg.LingerMS,
		"enable.idempotence": true,
		"message.max.bytes":  10 << 20,
	}
	if cfg.SASLMechanism != "" {
		_ = cm.SetKey("sasl.mechanism", cfg.SASLMechanism)
		_ = cm.SetKey("sasl.username", cfg.SASLUsername)
		_ = cm.SetKey("sasl.password", cfg.SASLPassword)
	}

	producer, err := kafka.NewProducer(cm)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	opts = append([]Option{WithFlushTimeout(time.Duration(cfg.FlushTimeoutMS) * time.Millisecond)}, opts...)
	p := NewPublisher(producer, cfg.Topic, opts...)
	p.logger.Info("Kafka publisher initialized", "topic", cfg.Topic, "servers", cfg.BootstrapServers)

	return p, nil
}

// NewPublisher wraps an existing producer.
func NewPublisher(producer Producer, topic string, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{
		producer:     producer,
		topic:        topic,
		logger:       slog.Default(),
		deliveries:   make(chan kafka.Event, 128),
		maxRetries:   5,
		baseBackoff:  100 * time.Millisecond,
		flushTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.handleDeliveryReports()

	return p
}

func (p *KafkaPublisher) handleDeliveryReports() {
	defer p.wg.Done()

	for e := range p.deliveries {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			p.failed.Add(1)
			p.logger.Error("Delivery failed", "error", m.TopicPartition.Error, "key", string(m.Key))
			continue
		}
		p.acked.Add(1)
		p.logger.Debug("Report delivered", "key", string(m.Key),
			"partition", m.TopicPartition.Partition, "offset", m.TopicPartition.Offset)
	}
}

// Message builds the Kafka message carrying report.
func (p *KafkaPublisher) Message(report *Report) (*kafka.Message, error) {
	payload, err := report.ToJSON()
	if err != nil {
		return nil, err
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(report.ReportID),
		Value:          payload,
		Timestamp:      report.CreatedAt,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(report.RunID)},
			{Key: "recording", Value: []byte(report.Recording)},
			{Key: "state", Value: []byte(report.State.String())},
		},
	}, nil
}

// Publish queues report for delivery, retrying with exponential backoff while
// the producer queue is full.
func (p *KafkaPublisher) Publish(ctx context.Context, report *Report) error {
	msg, err := p.Message(report)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.baseBackoff * time.Duration(1<<uint(attempt-1))
			p.logger.Warn("Retrying publish", "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish interrupted: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		err := p.producer.Produce(msg, p.deliveries)
		if err == nil {
			p.sent.Add(1)
			return nil
		}
		lastErr = err

		var kerr kafka.Error
		if !errors.As(err, &kerr) || (kerr.Code() != kafka.ErrQueueFull && !kerr.IsRetriable()) {
			p.rejected.Add(1)
			return fmt.Errorf("non-retriable error: %w", err)
		}
	}

	p.rejected.Add(1)
	return fmt.Errorf("failed after %d retries: %w", p.maxRetries, lastErr)
}

// Metrics returns delivery counters.
func (p *KafkaPublisher) Metrics() map[string]int64 {
	sent, acked, failed := p.sent.Load(), p.acked.Load(), p.failed.Load()
	return map[string]int64{
		"messages_sent":     sent,
		"messages_acked":    acked,
		"messages_failed":   failed,
		"messages_rejected": p.rejected.Load(),
		"messages_pending":  sent - acked - failed,
	}
}

// Close flushes outstanding messages and shuts the producer down.
func (p *KafkaPublisher) Close() {
	p.closeOnce.Do(func() {
		if remaining := p.producer.Flush(int(p.flushTimeout.Milliseconds())); remaining > 0 {
			p.logger.Warn("Messages still queued after flush timeout", "remaining", remaining)
		}
		p.producer.Close()
		close(p.deliveries)
		p.wg.Wait()

		m := p.Metrics()
		p.logger.Info("Kafka publisher closed", "sent", m["messages_sent"],
			"acked", m["messages_acked"], "failed", m["messages_failed"], "rejected", m["messages_rejected"])
	})
}
