package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"melcloud-bridge/internal/events"
)

const (
	kafkaQueueSize    = 256
	kafkaWriteTimeout = 10 * time.Second
)

var ErrKafkaDisabled = errors.New("kafka disabled")

// KafkaConfig configures the raw pair publisher.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Acks    int      `yaml:"acks"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes every RawPairUpdated event keyed by device id. Events are
// queued; when the queue is full the event is dropped and counted.
type Kafka struct {
	writer messageWriter
	topic  string
	logger *slog.Logger

	queue   chan kafka.Message
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	dropped int
}

// NewKafka creates a publisher on the configured brokers.
func NewKafka(cfg KafkaConfig, logger *slog.Logger) (*Kafka, error) {
	if !cfg.Enabled {
		return nil, ErrKafkaDisabled
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
	}
	return newKafka(w, cfg.Topic, logger), nil
}

func newKafka(w messageWriter, topic string, logger *slog.Logger) *Kafka {
	return &Kafka{
		writer: w,
		topic:  topic,
		logger: logger.With("component", "kafka", "topic", topic),
		queue:  make(chan kafka.Message, kafkaQueueSize),
	}
}

// Start launches the publishing loop. It returns when ctx is done or Stop
// is called.
func (k *Kafka) Start(ctx context.Context) {
	k.wg.Add(1)
	go k.run(ctx)
}

func (k *Kafka) run(ctx context.Context) {
	defer k.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-k.queue:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
			err := k.writer.WriteMessages(wctx, msg)
			cancel()
			if err != nil {
				k.logger.Warn("publish raw pair", "key", string(msg.Key), "err", err)
			}
		}
	}
}

// Attach subscribes the publisher to raw pair events. Returns an unsubscribe function.
func (k *Kafka) Attach(bus *events.Bus) func() {
	return bus.OnRawPair(func(e events.RawPairUpdated) {
		data, err := json.Marshal(events.Wrap(e))
		if err != nil {
			k.logger.Error("encode raw pair", "device", e.DeviceID, "err", err)
			return
		}
		k.enqueue(kafka.Message{Key: []byte(e.DeviceID), Value: data, Time: e.Time})
	})
}

func (k *Kafka) enqueue(msg kafka.Message) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return
	}
	select {
	case k.queue <- msg:
	default:
		k.dropped++
		k.logger.Debug("queue full, dropping raw pair", "key", string(msg.Key), "dropped", k.dropped)
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (k *Kafka) Dropped() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.dropped
}

// Stop drains the queue and closes the writer.
func (k *Kafka) Stop() error {
	k.mu.Lock()
	if k.stopped {
		k.mu.Unlock()
		return nil
	}
	k.stopped = true
	close(k.queue)
	k.mu.Unlock()
	k.wg.Wait()
	return k.writer.Close()
}
