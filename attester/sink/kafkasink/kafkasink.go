// Package kafkasink announces each run's attestation diffs on a Kafka topic,
// one message per pipeline keyed by the pipeline name.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/screwyprof/attester/attester"
)

// Sentinel errors for failure cases
var (
	ErrProducerSetup = errors.New("kafka producer setup failed")
	ErrEncodeFailed  = errors.New("encoding message failed")
	ErrSendFailed    = errors.New("sending messages failed")
)

// RunIDHeader carries the run id on every message
const RunIDHeader = "run-id"

// Message is the value of a published message
type Message struct {
	RunID    string   `json:"run_id"`
	Pipeline string   `json:"pipeline"`
	Date     string   `json:"date"`
	Baseline string   `json:"baseline,omitempty"`
	Issue    []string `json:"issue"`
	Revoke   []string `json:"revoke"`
	Ranked   []string `json:"ranked"`
}

// Sink publishes attestation diffs through a synchronous producer
type Sink struct {
	producer sarama.SyncProducer
	topic    string
}

// New creates a sink writing to topic
func New(producer sarama.SyncProducer, topic string) *Sink {
	return &Sink{producer: producer, topic: topic}
}

// Config returns the producer settings the sink relies on
func Config() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	return cfg
}

// Dial connects a producer to brokers and returns the sink with its closer
func Dial(brokers []string, topic string) (*Sink, func(), error) {
	producer, err := sarama.NewSyncProducer(brokers, Config())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProducerSetup, err)
	}
	return New(producer, topic), func() { _ = producer.Close() }, nil
}

// Publish implements attester.Publisher. Messages of one run are sent as a single batch.
func (s *Sink) Publish(_ context.Context, artifacts attester.Artifacts) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(artifacts.Pipelines))
	for _, pa := range artifacts.Pipelines {
		value, err := json.Marshal(toMessage(artifacts, pa))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrEncodeFailed, pa.Pipeline, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: s.topic,
			Key:   sarama.StringEncoder(pa.Pipeline.String()),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte(RunIDHeader), Value: []byte(artifacts.RunID.String())},
			},
		})
	}

	if err := s.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

func toMessage(a attester.Artifacts, pa attester.PipelineArtifacts) Message {
	m := Message{
		RunID:    a.RunID.String(),
		Pipeline: pa.Pipeline.String(),
		Date:     a.Date.Format(time.DateOnly),
		Issue:    make([]string, len(pa.Diff.Issue)),
		Revoke:   make([]string, len(pa.Diff.Revoke)),
		Ranked:   make([]string, len(pa.Ranked)),
	}
	if !a.Baseline.IsZero() {
		m.Baseline = a.Baseline.Format(time.DateOnly)
	}
	for i, d := range pa.Diff.Issue {
		m.Issue[i] = d.String()
	}
	for i, d := range pa.Diff.Revoke {
		m.Revoke[i] = d.String()
	}
	for i, r := range pa.Ranked {
		m.Ranked[i] = r.Delegate.String()
	}
	return m
}
