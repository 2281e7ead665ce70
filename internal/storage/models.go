package storage

import (
	"time"

	"gorm.io/gorm"
)

// CandidateRecord archives one accepted candidate
type CandidateRecord struct {
	ID                 int64   `gorm:"primaryKey;autoIncrement"`
	CandidateType      string  `gorm:"size:32;not null;index"`
	ConditionID        string  `gorm:"size:128;index"`
	MarketTitle        string  `gorm:"size:512"`
	MarketURL          string  `gorm:"size:512"`
	Category           string  `gorm:"size:64;index"`
	IsSports           bool    `gorm:"default:false"`
	WalletAddress      string  `gorm:"size:128;index"`
	WalletTier         string  `gorm:"size:32"`
	Credibility        float64 `gorm:"type:decimal(10,2)"`
	Side               string  `gorm:"size:16"`
	SideLabel          string  `gorm:"size:255"`
	AmountUSD          float64 `gorm:"type:decimal(20,6);not null"`
	OddsBefore         float64 `gorm:"type:decimal(10,6)"`
	OddsAfter          float64 `gorm:"type:decimal(10,6)"`
	SameSideWhales     int     `gorm:"not null;default:0"`
	EffectiveThreshold float64 `gorm:"type:decimal(20,6)"`
	TargetScore        float64 `gorm:"type:decimal(10,4)"`
	TraderCount        int     `gorm:"not null;default:0"`
	TotalAmountUSD     float64 `gorm:"type:decimal(20,6)"`
	Volume1hUSD        float64 `gorm:"type:decimal(20,6)"`
	SpikeRatio         float64 `gorm:"type:decimal(10,4)"`
	CreatedTS          int64   `gorm:"not null;index"`
}

func (CandidateRecord) TableName() string {
	return "candidates"
}

// ScanRecord stores the gate counter snapshot for one scan cycle
type ScanRecord struct {
	ID               int64 `gorm:"primaryKey;autoIncrement"`
	StartedTS        int64 `gorm:"not null;index"`
	DurationMS       int64 `gorm:"not null"`
	InputTrades      int   `gorm:"not null;default:0"`
	Accepted         int   `gorm:"not null;default:0"`
	RejectDuplicate  int   `gorm:"not null;default:0"`
	RejectMarket     int   `gorm:"not null;default:0"`
	RejectLiquidity  int   `gorm:"not null;default:0"`
	RejectVolume     int   `gorm:"not null;default:0"`
	RejectRelative   int   `gorm:"not null;default:0"`
	RejectPopularity int   `gorm:"not null;default:0"`
	RejectTarget     int   `gorm:"not null;default:0"`
	RejectQuality    int   `gorm:"not null;default:0"`
	RejectTailPrice  int   `gorm:"not null;default:0"`
	RejectWallet     int   `gorm:"not null;default:0"`
	RejectFlow       int   `gorm:"not null;default:0"`
	RejectImpact     int   `gorm:"not null;default:0"`
	RejectDuration   int   `gorm:"not null;default:0"`
	RejectSports     int   `gorm:"not null;default:0"`
	CreatedTS        int64 `gorm:"not null;index"`
}

func (ScanRecord) TableName() string {
	return "scans"
}

// BeforeCreate hook for timestamps
func (c *CandidateRecord) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedTS == 0 {
		c.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (s *ScanRecord) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedTS == 0 {
		s.CreatedTS = time.Now().Unix()
	}
	return nil
}
