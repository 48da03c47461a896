package models

import (
	"time"
)

// SummaryRecord holds one generation run of AI summaries for a paper. A paper
// may accumulate many records; lookups take the most recent by created_at.
// Levels that were not requested stay empty.
type SummaryRecord struct {
	SummaryID string `json:"summaryId" gorm:"column:summary_id;primaryKey"`
	PMID      string `json:"pmid" gorm:"column:pmid;index"`

	Short  string `json:"short" gorm:"type:text"`
	Medium string `json:"medium" gorm:"type:text"`
	Long   string `json:"long" gorm:"type:text"`

	CreatedAt   time.Time `json:"created_at" gorm:"index"`
	Model       string    `json:"model"`
	SummaryType string    `json:"summary_type"`
	PaperTitle  string    `json:"paper_title"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (SummaryRecord) TableName() string {
	return "summaries"
}

// SetLevel setzt den Text der benannten Stufe.
func (s *SummaryRecord) SetLevel(name, text string) {
	switch name {
	case "short":
		s.Short = text
	case "medium":
		s.Medium = text
	case "long":
		s.Long = text
	}
}

// LevelText gibt den Text der benannten Stufe zurück.
func (s *SummaryRecord) LevelText(name string) string {
	switch name {
	case "short":
		return s.Short
	case "medium":
		return s.Medium
	case "long":
		return s.Long
	}
	return ""
}
