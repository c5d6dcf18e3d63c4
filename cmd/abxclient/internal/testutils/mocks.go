package testutils

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/recovery"
	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/sink"
	"github.com/shubham-shewale/abx-client/pkg/models"
)

// ScriptedDialer answers every dial with an in-memory connection whose far end
// reads the 2-byte request, writes Reply (or ReplyFor[request]), and closes.
type ScriptedDialer struct {
	Reply    []byte
	ReplyFor map[[2]byte][]byte
	Err      error

	Mu       sync.Mutex
	Requests [][2]byte
	Dials    int
}

func (d *ScriptedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.Mu.Lock()
	d.Dials++
	d.Mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}

	client, server := net.Pipe()
	go func() {
		defer server.Close()
		var req [2]byte
		if _, err := io.ReadFull(server, req[:]); err != nil {
			return
		}
		d.Mu.Lock()
		d.Requests = append(d.Requests, req)
		reply := d.Reply
		if r, ok := d.ReplyFor[req]; ok {
			reply = r
		}
		d.Mu.Unlock()
		if len(reply) > 0 {
			server.Write(reply)
		}
	}()
	return client, nil
}

// FlakyDialer lets the first Allow dials through to Inner and refuses the rest.
type FlakyDialer struct {
	Inner recovery.Dialer
	Allow int

	Mu    sync.Mutex
	Dials int
}

func (d *FlakyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.Mu.Lock()
	d.Dials++
	n := d.Dials
	d.Mu.Unlock()
	if n > d.Allow {
		return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
	}
	return d.Inner.DialContext(ctx, network, address)
}

// MockRecoverer serves packets from a map; sequences not in it fail.
type MockRecoverer struct {
	Packets map[int32]models.Packet
	Delay   time.Duration

	Mu        sync.Mutex
	Requested []int32
}

func (m *MockRecoverer) FetchMissing(ctx context.Context, seq int32) (models.Packet, error) {
	m.Mu.Lock()
	m.Requested = append(m.Requested, seq)
	m.Mu.Unlock()
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if p, ok := m.Packets[seq]; ok {
		return p, nil
	}
	return models.Packet{}, errors.New("resend refused")
}

type MockSink struct {
	Mu         sync.Mutex
	Batches    [][]models.Packet
	ShouldFail bool
	Closed     bool
}

func (m *MockSink) Write(ctx context.Context, packets []models.Packet) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("sink unavailable")
	}
	m.Batches = append(m.Batches, append([]models.Packet(nil), packets...))
	return nil
}

func (m *MockSink) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }

type MockClock struct {
	Slept time.Duration
}

func (m *MockClock) Sleep(d time.Duration) { m.Slept += d }

type MockKafkaConn struct {
	CreatedTopics []string
	NotReady      bool
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *MockKafkaConn) Close() error { return nil }
func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
	}
	return nil
}
func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.NotReady {
		return nil, nil
	}
	return []kafka.Partition{{ID: 0}}, nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
	Fail    bool
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (sink.KafkaConn, error) {
	if m.Fail {
		return nil, errors.New("broker unreachable")
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}

type MockPipeline struct {
	redis.Pipeliner // Embed interface to satisfy missing methods

	ExecCount    int
	RecordedCmds []string
	Values       map[string][]string
	ShouldFail   bool
	Mu           sync.Mutex
}

func (m *MockPipeline) record(cmd, key string, value interface{}) {
	m.RecordedCmds = append(m.RecordedCmds, cmd+" "+key)
	if m.Values == nil {
		m.Values = make(map[string][]string)
	}
	if b, ok := value.([]byte); ok {
		m.Values[key] = append(m.Values[key], string(b))
	}
}

func (m *MockPipeline) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, k := range keys {
		m.record("DEL", k, nil)
	}
	return redis.NewIntCmd(ctx)
}

func (m *MockPipeline) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, v := range values {
		m.record("RPUSH", key, v)
	}
	return redis.NewIntCmd(ctx)
}

func (m *MockPipeline) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.record("SET", key, value)
	return redis.NewStatusCmd(ctx)
}

func (m *MockPipeline) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.record("PUBLISH", channel, message)
	return redis.NewIntCmd(ctx)
}

func (m *MockPipeline) Exec(ctx context.Context) ([]redis.Cmder, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ExecCount++
	if m.ShouldFail {
		return nil, errors.New("redis down")
	}
	return nil, nil
}

type MockRedisClient struct {
	PipelineSpy *MockPipeline
	Closed      bool
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{PipelineSpy: &MockPipeline{}}
}

func (m *MockRedisClient) Pipeline() redis.Pipeliner {
	return m.PipelineSpy
}

func (m *MockRedisClient) Close() error {
	m.Closed = true
	return nil
}
