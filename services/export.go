package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"medseal/config"
	"medseal/models"
	"medseal/storage"
)

// RegistryLister liefert den vollständigen Registry-Inhalt für den Export.
type RegistryLister interface {
	ListVerifications(ctx context.Context) ([]models.VerificationRecord, error)
}

// ExportService schreibt die Verifikations-Registry als gzip-komprimierte
// JSON-Lines-Datei nach S3. Läuft planmäßig über den Cron-Scheduler.
type ExportService struct {
	Config *config.Config
	Store  RegistryLister
	S3     *awss3.Client
	Logger *zap.Logger
}

// NewExportService erstellt eine neue Instanz des ExportService.
func NewExportService(cfg *config.Config, store RegistryLister, s3Client *awss3.Client, logger *zap.Logger) *ExportService {
	return &ExportService{Config: cfg, Store: store, S3: s3Client, Logger: logger}
}

// Run exportiert den aktuellen Stand der Registry in ein neues Objekt.
func (e *ExportService) Run(ctx context.Context) error {
	records, err := e.Store.ListVerifications(ctx)
	if err != nil {
		return fmt.Errorf("failed to list verifications: %w", err)
	}

	data, err := encodeRegistry(records)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("exports/verifications-%s.jsonl.gz", time.Now().UTC().Format("2006-01-02T15-04-05"))
	link, err := storage.UploadObject(ctx, e.S3, e.Config.S3Bucket, key, data, e.Config)
	if err != nil {
		return fmt.Errorf("failed to upload export: %w", err)
	}

	e.Logger.Info("Registry exportiert",
		zap.Int("records", len(records)),
		zap.String("key", key),
		zap.String("link", link))
	return nil
}

// encodeRegistry serialisiert die Datensätze zeilenweise als JSON und
// komprimiert das Ergebnis.
func encodeRegistry(records []models.VerificationRecord) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			gz.Close()
			return nil, fmt.Errorf("failed to encode record: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
