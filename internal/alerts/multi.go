package alerts

import (
	"context"
	"fmt"

	"github.com/shnfxl/polymarket-whale-tracker/internal/detector"
)

// MultiSender sends alerts to multiple destinations
type MultiSender struct {
	senders []Sender
}

// NewMultiSender creates a new multi-sender
func NewMultiSender(senders ...Sender) *MultiSender {
	return &MultiSender{
		senders: senders,
	}
}

// Send sends the alert to all configured senders
func (s *MultiSender) Send(ctx context.Context, c *detector.Candidate) error {
	var errs []error
	for i, sender := range s.senders {
		if err := sender.Send(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("sender %d: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("multi-sender errors: %v", errs)
	}

	return nil
}
