package alerts

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/shnfxl/polymarket-whale-tracker/internal/config"
	"github.com/shnfxl/polymarket-whale-tracker/internal/detector"
)

// Sender delivers one candidate to a destination
type Sender interface {
	Send(ctx context.Context, candidate *detector.Candidate) error
}

// NewFromConfig builds the sender stack selected by ALERT_MODE
// (comma-separated: log, telegram).
func NewFromConfig(cfg *config.Config, log *logrus.Logger) Sender {
	var senders []Sender
	for _, mode := range strings.Split(cfg.AlertMode, ",") {
		switch strings.TrimSpace(mode) {
		case "log":
			senders = append(senders, NewLogSender(log))
		case "telegram":
			senders = append(senders, NewTelegramSender(cfg, log))
		}
	}
	if len(senders) == 1 {
		return senders[0]
	}
	return NewMultiSender(senders...)
}

// FormatMessage renders a candidate as a plain-text alert
func FormatMessage(c *detector.Candidate) string {
	var b strings.Builder

	title := ""
	if c.Market != nil {
		title = c.Market.Title
	}

	switch c.Type {
	case detector.TypeWhaleBet:
		fmt.Fprintf(&b, "Whale bet detected\n")
		fmt.Fprintf(&b, "Market: %s\n", title)
		fmt.Fprintf(&b, "Side: %s @ %.3f\n", c.SideLabel, c.OddsAfter)
		fmt.Fprintf(&b, "Size: $%.0f\n", c.Amount)
		if c.Whale != nil {
			fmt.Fprintf(&b, "Wallet: %s (%s, credibility %.1f)\n", c.Whale.Nickname, c.Whale.Tier, c.Whale.Credibility)
		}
		fmt.Fprintf(&b, "Same-side whales: %d\n", c.SameSideWhales)
		fmt.Fprintf(&b, "Net inflow 1h: $%.0f\n", c.MarketNetInflow1h)
	case detector.TypeSmartMoney:
		fmt.Fprintf(&b, "Smart money consensus\n")
		fmt.Fprintf(&b, "Market: %s\n", title)
		fmt.Fprintf(&b, "Side: %s\n", c.ConsensusSide)
		fmt.Fprintf(&b, "Total: $%.0f across %d traders\n", c.TotalAmount, len(c.Traders))
	case detector.TypeVolumeSpike:
		fmt.Fprintf(&b, "Volume spike\n")
		fmt.Fprintf(&b, "Market: %s\n", title)
		fmt.Fprintf(&b, "1h volume: $%.0f (%.1fx hourly average)\n", c.Volume1h, c.SpikeRatio)
		fmt.Fprintf(&b, "Notable trades: %d\n", len(c.NotableTrades))
	default:
		fmt.Fprintf(&b, "Alert: %s\n", c.Type)
		fmt.Fprintf(&b, "Market: %s\n", title)
	}

	if c.MarketURL != "" {
		fmt.Fprintf(&b, "Link: %s", c.MarketURL)
	}
	return strings.TrimRight(b.String(), "\n")
}
