// Package exchange simulates the ABX exchange server. It replays a fixed
// packet book to "stream all" requests and answers single-packet resends,
// one request per connection.
package exchange

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/abx-client/pkg/models"
	"github.com/shubham-shewale/abx-client/pkg/wire"
)

const requestDeadline = 5 * time.Second

// Options shape what the simulated exchange gets wrong.
type Options struct {
	// Withhold are sequences left out of "stream all" but still served on resend.
	Withhold []int32
	// Unavailable are sequences whose resend closes the connection without a reply.
	Unavailable []int32
	// Trailer is written after the streamed frames, before close.
	Trailer []byte
	// Duplicates are sequences streamed twice.
	Duplicates []int32
}

type Server struct {
	logger  *zap.Logger
	book    []models.Packet
	metrics *Metrics

	withhold    map[int32]bool
	unavailable map[int32]bool
	duplicates  map[int32]bool
	trailer     []byte

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer builds a server over book. metrics may be nil.
func NewServer(logger *zap.Logger, book []models.Packet, opts Options, metrics *Metrics) *Server {
	return &Server{
		logger:      logger,
		book:        book,
		metrics:     metrics,
		withhold:    toSet(opts.Withhold),
		unavailable: toSet(opts.Unavailable),
		duplicates:  toSet(opts.Duplicates),
		trailer:     opts.Trailer,
	}
}

func toSet(seqs []int32) map[int32]bool {
	set := make(map[int32]bool, len(seqs))
	for _, s := range seqs {
		set[s] = true
	}
	return set
}

// Listen binds the server to addr. Use "127.0.0.1:0" for an ephemeral port.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then waits for in-flight
// connections to finish.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("exchange: Serve called before Listen")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info("Exchange simulator listening", zap.String("addr", ln.Addr().String()), zap.Int("packets", len(s.book)))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			s.logger.Error("Accept failed", zap.Error(err))
			s.wg.Wait()
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(requestDeadline))

	var req [wire.RequestSize]byte
	if _, err := io.ReadFull(conn, req[:]); err != nil {
		s.logger.Debug("Incomplete request", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		return
	}

	switch req[0] {
	case wire.CallStreamAll:
		s.metrics.request("stream_all")
		s.streamAll(conn)
	case wire.CallResend:
		s.metrics.request("resend")
		s.resend(conn, int32(req[1]))
	default:
		s.metrics.request("unknown")
		s.logger.Warn("Unknown call type", zap.Uint8("call_type", req[0]))
	}
}

func (s *Server) streamAll(conn net.Conn) {
	sent := 0
	for _, p := range s.book {
		if s.withhold[p.Sequence] {
			continue
		}
		repeat := 1
		if s.duplicates[p.Sequence] {
			repeat = 2
		}
		for i := 0; i < repeat; i++ {
			if err := s.writePacket(conn, p); err != nil {
				s.logger.Warn("Stream write failed", zap.Int32("sequence", p.Sequence), zap.Error(err))
				return
			}
			sent++
		}
	}

	if len(s.trailer) > 0 {
		if _, err := conn.Write(s.trailer); err != nil {
			s.logger.Warn("Trailer write failed", zap.Error(err))
			return
		}
	}
	s.logger.Debug("Stream complete", zap.Int("frames", sent))
}

func (s *Server) resend(conn net.Conn, seq int32) {
	if s.unavailable[seq] {
		s.logger.Debug("Resend refused", zap.Int32("sequence", seq))
		return
	}
	for _, p := range s.book {
		if p.Sequence == seq {
			if err := s.writePacket(conn, p); err != nil {
				s.logger.Warn("Resend write failed", zap.Int32("sequence", seq), zap.Error(err))
			}
			return
		}
	}
	s.logger.Debug("Resend for unknown sequence", zap.Int32("sequence", seq))
}

func (s *Server) writePacket(conn net.Conn, p models.Packet) error {
	frame, err := wire.EncodePacket(p)
	if err != nil {
		return err
	}
	if _, err := conn.Write(frame[:]); err != nil {
		return err
	}
	s.metrics.frame()
	return nil
}
