package sink_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/sink"
	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/testutils"
	"github.com/shubham-shewale/abx-client/pkg/models"
)

var batch = []models.Packet{
	{Symbol: "MSFT", Side: models.SideBuy, Quantity: 50, Price: 100, Sequence: 1},
	{Symbol: "AAPL", Side: models.SideSell, Quantity: 30, Price: 98, Sequence: 2},
	{Symbol: "MSFT", Side: models.SideSell, Quantity: 10, Price: 101, Sequence: 3},
}

func TestJSONFile_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abx_output.json")
	out := sink.NewJSONFile(zap.NewNop(), path)

	require.NoError(t, out.Write(context.Background(), batch))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"symbol\": \"MSFT\",\n    \"side\": \"B\",")

	var got []models.Packet
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, batch, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestJSONFile_EmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, sink.NewJSONFile(zap.NewNop(), path).Write(context.Background(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestResolvePath(t *testing.T) {
	p, err := sink.ResolvePath("abx_output.json", "/opt/abx")
	require.NoError(t, err)
	assert.Equal(t, "/opt/abx/abx_output.json", p)

	p, err = sink.ResolvePath("/var/out.json", "/opt/abx")
	require.NoError(t, err)
	assert.Equal(t, "/var/out.json", p)

	p, err = sink.ResolvePath("abx_output.json", "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(p))
}

func TestKafka_Write(t *testing.T) {
	writer := &testutils.MockKafkaWriter{}
	out := sink.NewKafka(zap.NewNop(), writer)

	require.NoError(t, out.Write(context.Background(), batch))

	require.Len(t, writer.Messages, 3)
	msg := writer.Messages[1]
	assert.Equal(t, "AAPL", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "sequence", msg.Headers[0].Key)
	assert.Equal(t, "2", string(msg.Headers[0].Value))

	var p models.Packet
	require.NoError(t, json.Unmarshal(msg.Value, &p))
	assert.Equal(t, batch[1], p)
}

func TestKafka_WriteError(t *testing.T) {
	out := sink.NewKafka(zap.NewNop(), &testutils.MockKafkaWriter{ShouldFail: true})
	assert.Error(t, out.Write(context.Background(), batch))
	assert.NoError(t, out.Write(context.Background(), nil))
}

func TestTopicCreator_Flow(t *testing.T) {
	dialer := &testutils.MockKafkaDialer{}
	clock := &testutils.MockClock{}

	tc := sink.NewTopicCreator(zap.NewNop(), dialer, clock)
	tc.Create(context.Background(), []string{"broker:9092"}, "abx_packets", 4)

	require.NotNil(t, dialer.ConnSpy)
	assert.Equal(t, []string{"abx_packets"}, dialer.ConnSpy.CreatedTopics)
	assert.Zero(t, clock.Slept)
}

func TestTopicCreator_WaitsThenGivesUp(t *testing.T) {
	dialer := &testutils.MockKafkaDialer{ConnSpy: &testutils.MockKafkaConn{NotReady: true}}
	clock := &testutils.MockClock{}

	sink.NewTopicCreator(zap.NewNop(), dialer, clock).Create(context.Background(), []string{"broker:9092"}, "abx_packets", 1)
	assert.Equal(t, time.Second, clock.Slept)
}

func TestTopicCreator_UnreachableBrokers(t *testing.T) {
	dialer := &testutils.MockKafkaDialer{Fail: true}
	sink.NewTopicCreator(zap.NewNop(), dialer, &testutils.MockClock{}).Create(context.Background(), []string{"a:9092", "b:9092"}, "t", 1)
	assert.Nil(t, dialer.ConnSpy)
}

func TestRedis_Write(t *testing.T) {
	client := testutils.NewMockRedisClient()
	out := sink.NewRedis(zap.NewNop(), client, time.Hour)

	require.NoError(t, out.Write(context.Background(), batch))

	pipe := client.PipelineSpy
	assert.Equal(t, 1, pipe.ExecCount)
	assert.Equal(t, []string{
		"DEL abx:packets",
		"RPUSH abx:packets",
		"RPUSH abx:packets",
		"RPUSH abx:packets",
		"SET abx:latest:MSFT",
		"SET abx:latest:AAPL",
		"PUBLISH abx.sessions",
	}, pipe.RecordedCmds)

	var latest models.Packet
	require.Len(t, pipe.Values["abx:latest:MSFT"], 1)
	require.NoError(t, json.Unmarshal([]byte(pipe.Values["abx:latest:MSFT"][0]), &latest))
	assert.Equal(t, int32(3), latest.Sequence)

	require.NoError(t, out.Close())
	assert.True(t, client.Closed)
}

func TestRedis_ExecError(t *testing.T) {
	client := testutils.NewMockRedisClient()
	client.PipelineSpy.ShouldFail = true

	assert.Error(t, sink.NewRedis(zap.NewNop(), client, time.Hour).Write(context.Background(), batch))
}

func TestMulti_WritesEverySink(t *testing.T) {
	failing := &testutils.MockSink{ShouldFail: true}
	ok := &testutils.MockSink{}

	err := sink.Multi{failing, ok}.Write(context.Background(), batch)
	assert.Error(t, err)
	require.Len(t, ok.Batches, 1)
	assert.Equal(t, batch, ok.Batches[0])

	require.NoError(t, sink.Multi{failing, ok}.Close())
	assert.True(t, ok.Closed)
}
