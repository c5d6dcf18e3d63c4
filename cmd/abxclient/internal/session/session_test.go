package session_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/session"
	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/stream"
	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/testutils"
	"github.com/shubham-shewale/abx-client/pkg/models"
	"github.com/shubham-shewale/abx-client/pkg/wire"
)

func packet(seq int32) models.Packet {
	return models.Packet{Symbol: "MSFT", Side: models.SideBuy, Quantity: seq * 10, Price: 100 + seq, Sequence: seq}
}

func streamOf(t *testing.T, seqs ...int32) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, s := range seqs {
		f, err := wire.EncodePacket(packet(s))
		require.NoError(t, err)
		buf.Write(f[:])
	}
	return buf.Bytes()
}

func recoverable(seqs ...int32) *testutils.MockRecoverer {
	m := &testutils.MockRecoverer{Packets: map[int32]models.Packet{}}
	for _, s := range seqs {
		m.Packets[s] = packet(s)
	}
	return m
}

type fixture struct {
	dialer    *testutils.ScriptedDialer
	recoverer *testutils.MockRecoverer
	sink      *testutils.MockSink
	metrics   *session.Metrics
	opts      session.Options
	reader    session.StreamReader
}

func newFixture(t *testing.T, streamed []byte, recoverer *testutils.MockRecoverer) *fixture {
	return &fixture{
		dialer:    &testutils.ScriptedDialer{Reply: streamed},
		recoverer: recoverer,
		sink:      &testutils.MockSink{},
		metrics:   session.NewMetrics(prometheus.NewRegistry()),
		opts:      session.Options{Addr: "abx:3000", Workers: 1},
		reader:    stream.NewReader(zap.NewNop(), time.Second),
	}
}

func (f *fixture) run(t *testing.T) (*session.Report, error) {
	t.Helper()
	s := session.NewSession(f.opts, zap.NewNop(), f.dialer, f.reader, f.recoverer, f.sink, f.metrics)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Run(ctx)
}

func TestRun_FillsGap(t *testing.T) {
	f := newFixture(t, streamOf(t, 1, 2, 4, 5), recoverable(3))

	report, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, session.Done, report.State)
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, models.Sequences(report.Packets))
	assert.Equal(t, []int32{3}, report.Missing)
	assert.Equal(t, []int32{3}, report.Recovered)
	assert.Empty(t, report.Unrecoverable)

	require.Len(t, f.sink.Batches, 1)
	assert.Equal(t, report.Packets, f.sink.Batches[0])
	assert.Equal(t, [][2]byte{{1, 0}}, f.dialer.Requests)

	assert.Equal(t, float64(4), testutil.ToFloat64(f.metrics.PacketsStreamed))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PacketsRecovered))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Sessions.WithLabelValues("done")))
}

func TestRun_UnrecoverableGapIsReported(t *testing.T) {
	f := newFixture(t, streamOf(t, 1, 3), recoverable())

	report, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, []int32{1, 3}, models.Sequences(report.Packets))
	require.Len(t, report.Unrecoverable, 1)
	gap := report.Unrecoverable[0]
	assert.Equal(t, int32(2), gap.Sequence)
	assert.ErrorIs(t, gap, session.ErrUnrecoverableGap)
	assert.ErrorIs(t, report.UnrecoverableErr(), session.ErrUnrecoverableGap)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.GapsUnrecovered))
}

func TestRun_KeepsDuplicates(t *testing.T) {
	f := newFixture(t, streamOf(t, 8, 7, 6, 7), recoverable())

	report, err := f.run(t)
	require.NoError(t, err)

	assert.Empty(t, report.Missing)
	assert.Equal(t, []int32{6, 7, 7, 8}, models.Sequences(report.Packets))
	assert.Empty(t, f.recoverer.Requested)
}

func TestRun_SequentialRecoveryIsAscending(t *testing.T) {
	f := newFixture(t, streamOf(t, 10, 1, 5), recoverable(2, 3, 4, 6, 7, 8, 9))

	report, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, []int32{2, 3, 4, 6, 7, 8, 9}, f.recoverer.Requested)
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, models.Sequences(report.Packets))
}

func TestRun_ParallelRecoveryIsolatesFailures(t *testing.T) {
	rec := recoverable(2, 4, 6, 8)
	rec.Delay = 10 * time.Millisecond
	f := newFixture(t, streamOf(t, 1, 9), rec)
	f.opts.Workers = 4

	report, err := f.run(t)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int32{2, 3, 4, 5, 6, 7, 8}, rec.Requested)
	assert.Equal(t, []int32{1, 2, 4, 6, 8, 9}, models.Sequences(report.Packets))
	assert.Equal(t, []int32{2, 4, 6, 8}, report.Recovered)

	var missed []int32
	for _, g := range report.Unrecoverable {
		missed = append(missed, g.Sequence)
	}
	assert.Equal(t, []int32{3, 5, 7}, missed)
}

func TestRun_DialFailureIsFatal(t *testing.T) {
	f := newFixture(t, nil, recoverable())
	f.dialer.Err = errors.New("connection refused")

	report, err := f.run(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrConnection)
	assert.Equal(t, session.Failed, report.State)
	assert.Empty(t, f.sink.Batches)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Sessions.WithLabelValues("failed")))
}

type resetReader struct{ res stream.Result }

func (r resetReader) ReadAll(io.Reader) (stream.Result, error) {
	return r.res, wire.ErrConnection
}

func TestRun_ResetBeforeDataIsFatal(t *testing.T) {
	f := newFixture(t, nil, recoverable())
	f.reader = resetReader{}

	report, err := f.run(t)
	assert.ErrorIs(t, err, wire.ErrConnection)
	assert.Equal(t, session.Failed, report.State)
}

func TestRun_ResetAfterDataContinues(t *testing.T) {
	f := newFixture(t, nil, recoverable(2))
	f.reader = resetReader{res: stream.Result{Packets: []models.Packet{packet(3), packet(1)}, Frames: 2}}

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, models.Sequences(report.Packets))
}

func TestRun_EmptyStream(t *testing.T) {
	f := newFixture(t, nil, recoverable())

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, session.Done, report.State)
	assert.Empty(t, report.Packets)
	assert.Empty(t, report.Missing)
}

func TestRun_SpanTooWideSkipsRecovery(t *testing.T) {
	f := newFixture(t, streamOf(t, 1, 100000), recoverable())
	f.opts.MaxGapSpan = 1000

	report, err := f.run(t)
	require.NoError(t, err)
	assert.True(t, report.SpanExceeded)
	assert.Empty(t, f.recoverer.Requested)
	assert.Equal(t, []int32{1, 100000}, models.Sequences(report.Packets))
}

func TestRun_EmitFailure(t *testing.T) {
	f := newFixture(t, streamOf(t, 1, 2), recoverable())
	f.sink.ShouldFail = true

	report, err := f.run(t)
	assert.ErrorIs(t, err, session.ErrEmit)
	assert.Error(t, report.EmitErr)
	assert.Equal(t, []int32{1, 2}, models.Sequences(report.Packets))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "gap_detection", session.GapDetection.String())
	assert.Equal(t, "failed", session.Failed.String())
	assert.Equal(t, "state(42)", session.State(42).String())
}
