package messaging

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"meshmon/config"
	"meshmon/logger"
)

// Producer publishes event envelopes to the configured topic. It
// implements the engine's Exporter interface.
type Producer struct {
	mu     sync.RWMutex
	cfg    *config.MessagingConfig
	writer *kafka.Writer
	source string
}

func NewProducer(cfg *config.MessagingConfig) *Producer {
	return &Producer{cfg: cfg, source: "meshmon"}
}

// SetSource names the publishing monitor, normally the local node id.
func (p *Producer) SetSource(id string) {
	p.mu.Lock()
	p.source = id
	p.mu.Unlock()
}

func (p *Producer) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	var conn *kafka.Conn
	var connErr error
	for _, broker := range p.cfg.Kafka.Brokers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, connErr = kafka.DialContext(ctx, "tcp", broker)
		cancel()
		if connErr == nil {
			logger.Infof("messaging: kafka connected to %s", broker)
			break
		}
	}
	if connErr != nil {
		return fmt.Errorf("kafka connect: %w", connErr)
	}

	ensureTopic(conn, p.cfg.EventsTopic)
	conn.Close()

	p.writer = &kafka.Writer{
		Addr:     kafka.TCP(p.cfg.Kafka.Brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return nil
}

// Publish wraps the payload in an envelope and writes it to the events
// topic.
func (p *Producer) Publish(ctx context.Context, event string, payload any) error {
	p.mu.RLock()
	writer := p.writer
	source := p.source
	topic := p.cfg.EventsTopic
	p.mu.RUnlock()

	if writer == nil {
		return fmt.Errorf("kafka not connected")
	}
	data, err := NewEnvelope(event, source, payload).Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Value: data,
	})
}

func (p *Producer) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.writer != nil
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Close()
		p.writer = nil
	}
}

// ensureTopic creates the topic if it does not already exist. Errors are
// logged but not fatal since the broker may auto-create topics anyway.
func ensureTopic(conn *kafka.Conn, topic string) {
	if topic == "" {
		return
	}

	controller, err := conn.Controller()
	if err != nil {
		logger.Warnf("messaging: cannot find controller for topic creation: %v", err)
		return
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafka.Dial("tcp", controllerAddr)
	if err != nil {
		logger.Warnf("messaging: cannot connect to controller: %v", err)
		return
	}
	defer controllerConn.Close()

	if err := controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}); err != nil {
		logger.Warnf("messaging: topic auto-create: %v", err)
	}
}
