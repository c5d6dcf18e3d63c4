package sink

import (
	"context"
	"errors"

	"github.com/shubham-shewale/abx-client/pkg/models"
)

// Multi writes to every sink, even when an earlier one fails.
type Multi []Sink

func (m Multi) Write(ctx context.Context, packets []models.Packet) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, packets); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
