package repository

import (
	"context"

	"CreditPulse/internal/domain/models"
	domrepo "CreditPulse/internal/domain/repository"
	pkgkafka "CreditPulse/pkg/kafka"
	"CreditPulse/pkg/util"
)

type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaTopics names the output topics. Empty topics are skipped.
type KafkaTopics struct {
	Results  string
	Signals  string
	Failures string
}

// KafkaPublisher implements ResultSink by publishing bundles, actionable
// signals and failures keyed by ticker.
type KafkaPublisher struct {
	producer batchPublisher
	topics   KafkaTopics
}

var _ domrepo.ResultSink = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topics KafkaTopics) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topics: topics}
}

func (p *KafkaPublisher) Append(ctx context.Context, b *models.AnalysisBundle) error {
	key := []byte(b.Inputs.Ticker)
	if p.topics.Results != "" {
		msg := pkgkafka.Message{Key: key, Value: b, Headers: map[string]string{"date": b.Inputs.Date.Format(util.DateLayout)}}
		if err := p.producer.PublishBatch(ctx, p.topics.Results, []pkgkafka.Message{msg}); err != nil {
			return err
		}
	}
	if p.topics.Signals != "" && b.Signal != nil && b.Signal.Action != models.ActionNone {
		msg := pkgkafka.Message{Key: key, Value: b.Signal, Headers: map[string]string{"action": string(b.Signal.Action)}}
		if err := p.producer.PublishBatch(ctx, p.topics.Signals, []pkgkafka.Message{msg}); err != nil {
			return err
		}
	}
	return nil
}

func (p *KafkaPublisher) RecordFailure(ctx context.Context, f models.RowFailure) error {
	if p.topics.Failures == "" {
		return nil
	}
	msg := pkgkafka.Message{Key: []byte(f.Ticker), Value: f, Headers: map[string]string{"kind": string(f.Kind)}}
	return p.producer.PublishBatch(ctx, p.topics.Failures, []pkgkafka.Message{msg})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
