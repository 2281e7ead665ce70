package alerts

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/shnfxl/polymarket-whale-tracker/internal/detector"
	"github.com/shnfxl/polymarket-whale-tracker/internal/metrics"
)

// LogSender sends alerts to the logger
type LogSender struct {
	log *logrus.Logger
}

// NewLogSender creates a new log sender
func NewLogSender(log *logrus.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the alert
func (s *LogSender) Send(ctx context.Context, c *detector.Candidate) error {
	fields := logrus.Fields{
		"type":     c.Type,
		"category": c.MarketCategory,
	}
	if c.Market != nil {
		fields["market"] = c.Market.Title
	}
	switch c.Type {
	case detector.TypeWhaleBet:
		fields["amount_usd"] = c.Amount
		fields["side"] = c.SideLabel
		fields["same_side_whales"] = c.SameSideWhales
		if c.Whale != nil {
			fields["wallet"] = c.Whale.Nickname
			fields["tier"] = c.Whale.Tier
		}
	case detector.TypeSmartMoney:
		fields["total_usd"] = c.TotalAmount
		fields["side"] = c.ConsensusSide
		fields["traders"] = len(c.Traders)
	case detector.TypeVolumeSpike:
		fields["volume_1h_usd"] = c.Volume1h
		fields["spike_ratio"] = c.SpikeRatio
	}
	s.log.WithFields(fields).Info("Alert generated")
	metrics.RecordAlert("success", "log")
	return nil
}
