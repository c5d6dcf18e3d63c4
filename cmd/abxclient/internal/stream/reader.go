package stream

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/abx-client/pkg/models"
	"github.com/shubham-shewale/abx-client/pkg/wire"
)

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Result is everything a "stream all" response produced.
type Result struct {
	Packets       []models.Packet // arrival order, duplicates kept
	Frames        int             // complete frames read, including dropped ones
	Dropped       int             // frames that failed to decode
	TrailingBytes int             // bytes of an incomplete final frame
}

type Reader struct {
	logger      *zap.Logger
	readTimeout time.Duration
}

// NewReader returns a Reader. A zero readTimeout disables read deadlines.
func NewReader(logger *zap.Logger, readTimeout time.Duration) *Reader {
	return &Reader{logger: logger, readTimeout: readTimeout}
}

// ReadAll reads fixed-size frames from r until the server ends the stream.
// A short read, including a clean close, is the end-of-stream signal and is
// not an error. Any other read failure stops the loop and is returned wrapped
// in wire.ErrConnection alongside whatever was read before it.
func (rd *Reader) ReadAll(r io.Reader) (Result, error) {
	var res Result
	frame := make([]byte, wire.FrameSize)
	dl, _ := r.(deadliner)

	for {
		if dl != nil && rd.readTimeout > 0 {
			dl.SetReadDeadline(time.Now().Add(rd.readTimeout))
		}

		n, err := io.ReadFull(r, frame)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				res.TrailingBytes = n
				if n > 0 {
					rd.logger.Warn("Discarding partial frame at end of stream", zap.Int("bytes", n), zap.Int("frame", res.Frames))
				}
				return res, nil
			}
			return res, fmt.Errorf("%w: reading frame %d: %w", wire.ErrConnection, res.Frames, err)
		}
		res.Frames++

		p, err := wire.DecodePacket(frame)
		if err != nil {
			res.Dropped++
			rd.logger.Error("Dropping undecodable frame", zap.String("phase", "streaming"), zap.Int("frame", res.Frames-1), zap.Error(err))
			continue
		}
		res.Packets = append(res.Packets, p)
	}
}
