package models

import (
	"time"
)

// PaperRecord holds the cached PubMed metadata and abstract for one article.
// A re-fetch of the same PMID overwrites the row; records are never deleted.
type PaperRecord struct {
	PMID     string   `json:"pmid" gorm:"column:pmid;primaryKey"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract" gorm:"type:text"`
	Authors  []string `json:"authors" gorm:"serializer:json"`
	Journal  string   `json:"journal"`
	PubDate  string   `json:"pubdate" gorm:"column:pubdate"`
	DOI      string   `json:"doi" gorm:"column:doi"`
	ISSN     string   `json:"issn" gorm:"column:issn"`
	Volume   string   `json:"volume"`
	Issue    string   `json:"issue"`
	Pages    string   `json:"pages"`
	PMCID    string   `json:"pmcid" gorm:"column:pmcid"`

	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
}

// TableName legt den Tabellennamen fest.
func (PaperRecord) TableName() string {
	return "papers"
}
