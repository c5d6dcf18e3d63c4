// Package session drives one ABX replay: stream everything, find the holes,
// resend them one by one, and hand the ordered batch to the output.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/gaps"
	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/recovery"
	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/stream"
	"github.com/shubham-shewale/abx-client/pkg/models"
	"github.com/shubham-shewale/abx-client/pkg/wire"
)

// StreamReader consumes a stream-all response.
type StreamReader interface {
	ReadAll(r io.Reader) (stream.Result, error)
}

const DefaultMaxGapSpan = 1 << 16

type Options struct {
	Addr       string
	Workers    int   // concurrent resend requests; 1 keeps them sequential and ascending
	MaxGapSpan int64 // largest observed range recovery will be attempted for
}

type Session struct {
	opts      Options
	logger    *zap.Logger
	dialer    recovery.Dialer
	reader    StreamReader
	recoverer Recoverer
	out       Emitter
	metrics   *Metrics
}

// NewSession wires a session. out and metrics may be nil.
func NewSession(opts Options, logger *zap.Logger, dialer recovery.Dialer, reader StreamReader, recoverer Recoverer, out Emitter, metrics *Metrics) *Session {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxGapSpan <= 0 {
		opts.MaxGapSpan = DefaultMaxGapSpan
	}
	return &Session{
		opts:      opts,
		logger:    logger,
		dialer:    dialer,
		reader:    reader,
		recoverer: recoverer,
		out:       out,
		metrics:   metrics,
	}
}

// Run executes the session. The returned error is non-nil only when the
// bulk stream could not be obtained or the output rejected the batch; gaps
// that could not be recovered are listed in the report instead.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}
	defer func() {
		report.Duration = time.Since(start)
		s.metrics.observe(report)
	}()

	packets, err := s.streamAll(ctx, report)
	if err != nil {
		s.enter(report, Failed)
		s.logger.Error("Session failed", zap.String("phase", "streaming"), zap.String("addr", s.opts.Addr), zap.Error(err))
		return report, err
	}

	s.enter(report, GapDetection)
	seqs := models.Sequences(packets)
	if span := gaps.Span(seqs); span > s.opts.MaxGapSpan {
		report.SpanExceeded = true
		s.logger.Error("Observed sequence range too wide, skipping recovery",
			zap.Int64("span", span), zap.Int64("max_span", s.opts.MaxGapSpan))
	} else {
		report.Missing = gaps.FindMissing(seqs)
	}
	if len(report.Missing) > 0 {
		s.logger.Info("Missing sequences", zap.Int32s("sequences", report.Missing))
	}

	s.enter(report, Recovering)
	recovered := s.recoverAll(ctx, report)

	s.enter(report, Sorting)
	final := make([]models.Packet, 0, len(packets)+len(recovered))
	final = append(final, packets...)
	final = append(final, recovered...)
	sort.SliceStable(final, func(i, j int) bool { return final[i].Sequence < final[j].Sequence })
	report.Packets = final

	if s.out != nil {
		s.enter(report, Emitting)
		if err := s.out.Write(ctx, final); err != nil {
			report.EmitErr = err
			s.enter(report, Done)
			s.logger.Error("Output failed", zap.String("phase", "emitting"), zap.Error(err))
			return report, fmt.Errorf("%w: %w", ErrEmit, err)
		}
	}

	s.enter(report, Done)
	s.logger.Info("Session complete",
		zap.Int("packets", len(final)),
		zap.Int("recovered", len(report.Recovered)),
		zap.Int("unrecoverable", len(report.Unrecoverable)))
	return report, nil
}

func (s *Session) enter(r *Report, st State) {
	r.State = st
	s.logger.Debug("Session state", zap.Stringer("state", st))
}

// streamAll sends the stream-all request over a connection that lives only
// for this phase.
func (s *Session) streamAll(ctx context.Context, report *Report) ([]models.Packet, error) {
	s.enter(report, Connecting)
	conn, err := s.dialer.DialContext(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", wire.ErrConnection, s.opts.Addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	req := wire.EncodeStreamAllRequest()
	if _, err := conn.Write(req[:]); err != nil {
		return nil, fmt.Errorf("%w: send stream-all request: %w", wire.ErrConnection, err)
	}

	s.enter(report, Streaming)
	res, err := s.reader.ReadAll(conn)
	report.Streamed = len(res.Packets)
	report.Dropped = res.Dropped
	report.TrailingBytes = res.TrailingBytes
	if err != nil {
		if res.Frames == 0 {
			return nil, err
		}
		s.logger.Warn("Stream interrupted, continuing with packets received so far",
			zap.String("phase", "streaming"), zap.Int("packets", len(res.Packets)), zap.Error(err))
	}

	s.logger.Info("Stream finished", zap.Int("packets", len(res.Packets)), zap.Int("dropped", res.Dropped))
	return res.Packets, nil
}

type outcome struct {
	packet models.Packet
	err    error
}

// recoverAll resends every missing sequence. Attempts are independent: a
// failure is recorded for its sequence and never cancels the others.
func (s *Session) recoverAll(ctx context.Context, report *Report) []models.Packet {
	if len(report.Missing) == 0 {
		return nil
	}

	results := make([]outcome, len(report.Missing))
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, seq := range report.Missing {
		i, seq := i, seq
		g.Go(func() error {
			p, err := s.recoverer.FetchMissing(ctx, seq)
			results[i] = outcome{packet: p, err: err}
			return nil
		})
	}
	g.Wait()

	var recovered []models.Packet
	for i, seq := range report.Missing {
		res := results[i]
		if res.err != nil {
			gap := UnrecoverableGap{Sequence: seq, Err: res.err}
			report.Unrecoverable = append(report.Unrecoverable, gap)
			s.logger.Warn("Failed to recover packet", zap.String("phase", "recovering"), zap.Int32("sequence", seq), zap.Error(res.err))
			continue
		}
		recovered = append(recovered, res.packet)
		report.Recovered = append(report.Recovered, seq)
		s.logger.Info("Recovered packet", zap.Int32("sequence", seq))
	}
	return recovered
}

// UnrecoverableErr joins the report's unrecoverable gaps into one error, or nil.
func (r *Report) UnrecoverableErr() error {
	errs := make([]error, len(r.Unrecoverable))
	for i, g := range r.Unrecoverable {
		errs[i] = g
	}
	return errors.Join(errs...)
}
