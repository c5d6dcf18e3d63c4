// Package recovery re-requests individual packets from the exchange.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/abx-client/pkg/models"
	"github.com/shubham-shewale/abx-client/pkg/wire"
)

// ErrSequenceMismatch means the exchange answered a resend with a different
// packet than the one requested. Sequences above wire.MaxResendSequence always
// end up here because the request only carries the low byte.
var ErrSequenceMismatch = errors.New("resend returned a different sequence")

type Client struct {
	logger  *zap.Logger
	dialer  Dialer
	addr    string
	timeout time.Duration
}

// NewClient returns a Client that dials addr for every request. timeout bounds
// the request write and the reply read; zero disables it.
func NewClient(logger *zap.Logger, dialer Dialer, addr string, timeout time.Duration) *Client {
	return &Client{
		logger:  logger,
		dialer:  dialer,
		addr:    addr,
		timeout: timeout,
	}
}

// FetchMissing asks the exchange to resend seq over a fresh connection and
// decodes the single frame it replies with. Errors wrap wire.ErrConnection,
// wire.ErrShortRead, wire.ErrDecode or ErrSequenceMismatch.
func (c *Client) FetchMissing(ctx context.Context, seq int32) (models.Packet, error) {
	if !wire.ResendAddressable(seq) {
		c.logger.Warn("Sequence cannot be addressed by a one-byte resend, request will alias",
			zap.Int32("sequence", seq), zap.Uint8("wire_sequence", uint8(seq)))
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return models.Packet{}, fmt.Errorf("%w: dial %s: %w", wire.ErrConnection, c.addr, err)
	}
	defer conn.Close()

	if c.timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}

	req := wire.EncodeResendRequest(seq)
	if _, err := conn.Write(req[:]); err != nil {
		return models.Packet{}, fmt.Errorf("%w: send resend request: %w", wire.ErrConnection, err)
	}

	frame := make([]byte, wire.FrameSize)
	n, err := io.ReadFull(conn, frame)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return models.Packet{}, fmt.Errorf("%w: got %d of %d bytes", wire.ErrShortRead, n, wire.FrameSize)
		}
		return models.Packet{}, fmt.Errorf("%w: read resend reply: %w", wire.ErrConnection, err)
	}

	p, err := wire.DecodePacket(frame)
	if err != nil {
		return models.Packet{}, err
	}
	if p.Sequence != seq {
		return models.Packet{}, fmt.Errorf("%w: requested %d, received %d", ErrSequenceMismatch, seq, p.Sequence)
	}
	return p, nil
}
