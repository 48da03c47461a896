package models

import (
	"time"
)

// Receipt is the simulated ledger transaction attached to a verification
// record on request. It is synthesized exactly once at registration time and
// never regenerated; the note marks it as a simulation.
type Receipt struct {
	Network         string `json:"network"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     int64  `json:"blockNumber"`
	Timestamp       string `json:"timestamp"`
	From            string `json:"from"`
	To              string `json:"to"`
	GasUsed         string `json:"gasUsed"`
	Status          string `json:"status"`
	Note            string `json:"note"`
}

// VerificationRecord registers a digest in the registry. Created once per
// digest (writes are upserts); only the verifier mutates it, via an atomic
// counter increment. Rows are never deleted.
type VerificationRecord struct {
	Digest     string `json:"hash" gorm:"column:digest;primaryKey"`
	PMID       string `json:"pmid" gorm:"column:pmid;index"`
	SummaryID  string `json:"summaryId" gorm:"column:summary_id"`
	PaperTitle string `json:"paper_title"`

	CreatedAt    time.Time `json:"created_at"`
	CreatedEpoch int64     `json:"timestamp"`

	VerificationCount int64      `json:"verification_count" gorm:"not null;default:0"`
	LastVerified      *time.Time `json:"last_verified"`

	SecretKeyUsed   bool `json:"has_secret"`
	ReceiptAttached bool `json:"store_on_chain"`

	Receipt *Receipt `json:"blockchain,omitempty" gorm:"serializer:json"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (VerificationRecord) TableName() string {
	return "verifications"
}
