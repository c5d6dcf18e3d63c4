package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/abx-client/pkg/models"
)

var _ Sink = (*Kafka)(nil)

// Kafka publishes one message per packet, keyed by symbol so that a symbol's
// packets share a partition and keep their sequence order.
type Kafka struct {
	logger *zap.Logger
	writer KafkaWriter
}

func NewKafka(logger *zap.Logger, writer KafkaWriter) *Kafka {
	return &Kafka{logger: logger, writer: writer}
}

func (k *Kafka) Write(ctx context.Context, packets []models.Packet) error {
	if len(packets) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(packets))
	for _, p := range packets {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode packet %d: %w", p.Sequence, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(p.Symbol),
			Value:   payload,
			Headers: []kafka.Header{{Key: "sequence", Value: []byte(strconv.Itoa(int(p.Sequence)))}},
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	k.logger.Info("Batch published to Kafka", zap.Int("messages", len(msgs)))
	return nil
}

func (k *Kafka) Close() error { return k.writer.Close() }

type TopicCreator struct {
	logger *zap.Logger
	dialer KafkaDialer
	clock  Clock
}

func NewTopicCreator(logger *zap.Logger, dialer KafkaDialer, clock Clock) *TopicCreator {
	return &TopicCreator{
		logger: logger,
		dialer: dialer,
		clock:  clock,
	}
}

// Create makes sure topicName exists. It is best-effort: failures are logged
// and the writer is left to surface any real problem.
func (tc *TopicCreator) Create(ctx context.Context, brokers []string, topicName string, partitions int) {
	var conn KafkaConn
	var err error

	for _, addr := range brokers {
		conn, err = tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
	}
	if err != nil || conn == nil {
		tc.logger.Warn("Failed to dial brokers", zap.Strings("brokers", brokers), zap.Error(err))
		return
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		tc.logger.Warn("Failed to get controller", zap.Error(err))
		return
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		tc.logger.Warn("Failed to dial controller", zap.Error(err))
		return
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topicName,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		tc.logger.Info("Topic creation finished (might already exist)", zap.Error(err))
	} else {
		tc.logger.Info("Topic creation request sent", zap.String("topic", topicName))
	}

	tc.waitForTopic(conn, topicName)
}

func (tc *TopicCreator) waitForTopic(conn KafkaConn, topicName string) {
	for i := 0; i < 5; i++ {
		partitions, err := conn.ReadPartitions(topicName)
		if err == nil && len(partitions) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topicName), zap.Int("partitions", len(partitions)))
			return
		}
		tc.clock.Sleep(200 * time.Millisecond)
	}
	tc.logger.Warn("Timed out waiting for topic", zap.String("topic", topicName))
}
