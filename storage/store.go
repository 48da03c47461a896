package storage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medseal/models"
)

// ErrNotFound wird zurückgegeben, wenn ein Datensatz nicht existiert.
var ErrNotFound = errors.New("record not found")

// Store bundles the registry operations on top of GORM. The services consume
// it through narrow per-record-type interfaces (PaperStore, SummaryStore,
// VerificationStore) so each component only sees the capabilities it needs.
type Store struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewStore erstellt eine neue Store-Instanz.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{DB: db, Logger: logger}
}

// GetPaper looks up a cached paper record by PMID.
func (s *Store) GetPaper(ctx context.Context, pmid string) (*models.PaperRecord, error) {
	var paper models.PaperRecord
	err := s.DB.WithContext(ctx).First(&paper, "pmid = ?", pmid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &paper, nil
}

// PutPaper upserts a paper record; a re-fetch overwrites the previous row.
func (s *Store) PutPaper(ctx context.Context, paper *models.PaperRecord) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pmid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "abstract", "authors", "journal", "pubdate", "doi",
			"issn", "volume", "issue", "pages", "pmcid", "fetched_at", "source",
		}),
	}).Create(paper).Error
}

// LatestSummary returns the most recent summary record for a PMID.
func (s *Store) LatestSummary(ctx context.Context, pmid string) (*models.SummaryRecord, error) {
	var summary models.SummaryRecord
	err := s.DB.WithContext(ctx).
		Where("pmid = ?", pmid).
		Order("created_at desc").
		First(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// PutSummary stores a freshly generated summary record.
func (s *Store) PutSummary(ctx context.Context, summary *models.SummaryRecord) error {
	return s.DB.WithContext(ctx).Create(summary).Error
}

// GetVerification looks up a verification record by digest.
func (s *Store) GetVerification(ctx context.Context, digest string) (*models.VerificationRecord, error) {
	var rec models.VerificationRecord
	err := s.DB.WithContext(ctx).First(&rec, "digest = ?", digest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutVerification upserts a verification record. Registering the same digest
// twice is deliberately not an error; the verification counter is left alone
// so re-registration cannot reset it.
func (s *Store) PutVerification(ctx context.Context, rec *models.VerificationRecord) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "digest"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"pmid", "summary_id", "paper_title", "created_at", "created_epoch",
			"secret_key_used", "receipt_attached", "receipt",
		}),
	}).Create(rec).Error
}

// IncrementVerification bumps the verification counter by one and stamps
// last_verified, as a single SQL expression so concurrent verifies never lose
// an update. The updated record is re-read for the response; under concurrent
// verifies the returned count already includes the caller's own increment.
func (s *Store) IncrementVerification(ctx context.Context, digest string, at time.Time) (*models.VerificationRecord, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.VerificationRecord{}).
		Where("digest = ?", digest).
		Updates(map[string]interface{}{
			"verification_count": gorm.Expr("verification_count + ?", 1),
			"last_verified":      at,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var rec models.VerificationRecord
	if err := s.DB.WithContext(ctx).First(&rec, "digest = ?", digest).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListVerifications returns all verification records, oldest first. Used by
// the registry export job.
func (s *Store) ListVerifications(ctx context.Context) ([]models.VerificationRecord, error) {
	var recs []models.VerificationRecord
	if err := s.DB.WithContext(ctx).Order("created_at asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
