package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shnfxl/polymarket-whale-tracker/internal/config"
	"github.com/shnfxl/polymarket-whale-tracker/internal/detector"
	"github.com/shnfxl/polymarket-whale-tracker/internal/metrics"
)

// DB wraps the GORM database connection
type DB struct {
	conn *gorm.DB
	log  *logrus.Logger
}

// New creates a new database connection with GORM
func New(cfg *config.Config, log *logrus.Logger) (*DB, error) {
	gormLogger := logger.New(
		&gormLogAdapter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(mysql.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	sqlDB.SetConnMaxIdleTime(cfg.DatabaseMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("Database connection established")

	return &DB{conn: conn, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs GORM auto-migration (for development only)
func (db *DB) AutoMigrate() error {
	return db.conn.AutoMigrate(
		&CandidateRecord{},
		&ScanRecord{},
	)
}

// InsertCandidate archives an accepted candidate
func (db *DB) InsertCandidate(ctx context.Context, c *detector.Candidate) error {
	record := recordFromCandidate(c)
	err := db.conn.WithContext(ctx).Create(record).Error
	metrics.RecordDatabaseQuery("insert_candidate", err)
	return err
}

// InsertScan archives the gate counters of one completed scan
func (db *DB) InsertScan(ctx context.Context, startedAt time.Time, duration time.Duration, counters map[string]int) error {
	record := &ScanRecord{
		StartedTS:        startedAt.Unix(),
		DurationMS:       duration.Milliseconds(),
		InputTrades:      counters["input_trades"],
		Accepted:         counters["accepted"],
		RejectDuplicate:  counters["reject_duplicate"],
		RejectMarket:     counters["reject_missing_market"],
		RejectLiquidity:  counters["reject_market_liquidity"],
		RejectVolume:     counters["reject_market_volume"],
		RejectRelative:   counters["reject_relative_size"],
		RejectPopularity: counters["reject_not_popular"],
		RejectTarget:     counters["reject_market_target"],
		RejectQuality:    counters["reject_market_quality"],
		RejectTailPrice:  counters["reject_tail_price"],
		RejectWallet:     counters["reject_wallet_quality"],
		RejectFlow:       counters["reject_flow_quality"],
		RejectImpact:     counters["reject_impact_quality"],
		RejectDuration:   counters["reject_short_duration"],
		RejectSports:     counters["reject_sports_threshold"],
	}
	err := db.conn.WithContext(ctx).Create(record).Error
	metrics.RecordDatabaseQuery("insert_scan", err)
	return err
}

// RecentCandidates returns the newest archived candidates, most recent first
func (db *DB) RecentCandidates(ctx context.Context, limit int) ([]CandidateRecord, error) {
	var records []CandidateRecord
	err := db.conn.WithContext(ctx).
		Order("created_ts DESC").
		Limit(limit).
		Find(&records).Error
	metrics.RecordDatabaseQuery("recent_candidates", err)
	return records, err
}

func recordFromCandidate(c *detector.Candidate) *CandidateRecord {
	record := &CandidateRecord{
		CandidateType:  c.Type,
		MarketURL:      c.MarketURL,
		Category:       c.MarketCategory,
		IsSports:       c.IsSportsMarket,
		CreatedTS:      c.Timestamp.Unix(),
		AmountUSD:      c.Amount,
		Side:           c.Side,
		SideLabel:      c.SideLabel,
		OddsBefore:     c.OddsBefore,
		OddsAfter:      c.OddsAfter,
		SameSideWhales: c.SameSideWhales,
	}
	if c.Market != nil {
		record.ConditionID = c.Market.ConditionID
		record.MarketTitle = c.Market.Title
	}
	if c.Whale != nil {
		record.WalletAddress = c.Whale.Address
		record.WalletTier = c.Whale.Tier
		record.Credibility = c.Whale.Credibility
	}
	record.EffectiveThreshold = c.EffectiveThreshold
	record.TargetScore = c.MarketTargetScore
	record.TraderCount = len(c.Traders)
	record.TotalAmountUSD = c.TotalAmount
	record.Volume1hUSD = c.Volume1h
	record.SpikeRatio = c.SpikeRatio
	return record
}

// gormLogAdapter adapts logrus to GORM's logger interface
type gormLogAdapter struct {
	log *logrus.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
