package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"medseal/models"
	"medseal/storage"
)

// VerificationStore ist der Ausschnitt der Storage-Schicht für die
// Registrierung und Prüfung von Digests.
type VerificationStore interface {
	GetVerification(ctx context.Context, digest string) (*models.VerificationRecord, error)
	PutVerification(ctx context.Context, rec *models.VerificationRecord) error
	IncrementVerification(ctx context.Context, digest string, at time.Time) (*models.VerificationRecord, error)
}

// Canonicalize baut die kanonische Darstellung eines Paper/Summary-Paars.
// Feldreihenfolge und Trennzeichen sind Teil des Wire-Formats und dürfen
// nicht verändert werden, sonst verifizieren alte Digests nicht mehr.
func Canonicalize(pmid, title, doi, pubdate, summary string) string {
	parts := []string{pmid, title, doi, pubdate, strings.TrimSpace(summary)}
	return strings.Join(parts, "|")
}

// ComputeDigest bildet den Hex-Digest der kanonischen Darstellung. Ohne
// Schlüssel wird SHA-256 verwendet, mit Schlüssel HMAC-SHA256.
func ComputeDigest(canonical, key string) string {
	if key == "" {
		sum := sha256.Sum256([]byte(canonical))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyDigest prüft einen Kandidaten gegen die kanonische Darstellung in
// konstanter Zeit.
func VerifyDigest(canonical, key, candidate string) bool {
	expected := ComputeDigest(canonical, key)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(candidate)))
}

// NormalizeDigest trimmt Leerraum, normalisiert auf Kleinbuchstaben und
// entfernt ein etwaiges 0x-Präfix.
func NormalizeDigest(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimPrefix(d, "0x")
}

func validDigest(d string) bool {
	if len(d) != 64 {
		return false
	}
	for _, r := range d {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// FingerprintService registriert Digests und beantwortet Verifikationen.
type FingerprintService struct {
	Store      VerificationStore
	Logger     *zap.Logger
	APIBaseURL string
}

// NewFingerprintService erstellt eine neue Instanz des FingerprintService.
func NewFingerprintService(store VerificationStore, logger *zap.Logger, apiBaseURL string) *FingerprintService {
	return &FingerprintService{Store: store, Logger: logger, APIBaseURL: apiBaseURL}
}

// CreateInput bündelt die Felder einer Registrierung. PMID, SummaryID und
// Summary sind Pflicht, der Rest ist optional.
type CreateInput struct {
	PMID          string
	SummaryID     string
	Summary       string
	Title         string
	DOI           string
	PubDate       string
	SecretKey     string
	AttachReceipt bool
}

// CreateResult ist das Ergebnis einer Registrierung. Stored ist false, wenn
// der Digest berechnet, aber nicht persistiert werden konnte.
type CreateResult struct {
	Digest string
	Record *models.VerificationRecord
	Stored bool
}

// Create berechnet den Digest und registriert ihn. Eine erneute
// Registrierung desselben Inhalts ist idempotent; der Zähler bestehender
// Einträge bleibt dabei erhalten.
func (s *FingerprintService) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	var missing []string
	if in.PMID == "" {
		missing = append(missing, "pmid")
	}
	if in.SummaryID == "" {
		missing = append(missing, "summaryId")
	}
	if in.Summary == "" {
		missing = append(missing, "summary")
	}
	if len(missing) > 0 {
		return nil, &MissingFieldError{Fields: missing}
	}

	canonical := Canonicalize(in.PMID, in.Title, in.DOI, in.PubDate, in.Summary)
	digest := ComputeDigest(canonical, in.SecretKey)

	// Zum Schlüssel selbst wird nie geloggt, nur ob einer verwendet wurde.
	log := s.Logger.With(
		zap.String("pmid", in.PMID),
		zap.String("digest", digest),
		zap.Bool("has_secret", in.SecretKey != ""))

	if _, err := s.Store.GetVerification(ctx, digest); err == nil {
		log.Info("Digest bereits registriert, Registrierung wird idempotent wiederholt.")
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Warn("Duplikatsprüfung fehlgeschlagen", zap.Error(err))
	}

	now := time.Now().UTC()
	rec := &models.VerificationRecord{
		Digest:          digest,
		PMID:            in.PMID,
		SummaryID:       in.SummaryID,
		PaperTitle:      in.Title,
		CreatedAt:       now,
		CreatedEpoch:    now.Unix(),
		SecretKeyUsed:   in.SecretKey != "",
		ReceiptAttached: in.AttachReceipt,
	}
	if in.AttachReceipt {
		rec.Receipt = BuildReceipt(digest, now)
	}

	result := &CreateResult{Digest: digest, Record: rec, Stored: true}
	if err := s.Store.PutVerification(ctx, rec); err != nil {
		// Der Digest ist trotzdem gültig, nur nicht verifizierbar.
		log.Error("Konnte Registrierung nicht persistieren", zap.Error(err))
		result.Stored = false
		return result, nil
	}

	log.Info("Digest registriert", zap.String("summary_id", in.SummaryID))
	return result, nil
}

// VerificationURL liefert den relativen Verifikationspfad für einen Digest.
func (s *FingerprintService) VerificationURL(digest string) string {
	return "/verify/" + digest
}

// APIURL liefert die absolute Verifikations-URL für einen Digest.
func (s *FingerprintService) APIURL(digest string) string {
	return strings.TrimRight(s.APIBaseURL, "/") + "/verify/" + digest
}

// VerifyResult ist das Ergebnis einer Verifikation. Bei Verified=false und
// err=nil ist der Digest wohlgeformt, aber nicht registriert.
type VerifyResult struct {
	Verified bool
	Digest   string
	Record   *models.VerificationRecord
}

// Verify schlägt einen Digest in der Registry nach und erhöht bei Erfolg
// den Verifikationszähler. Schlägt das Erhöhen fehl, wird der bisherige
// Zählerstand gemeldet statt die Verifikation abzubrechen.
func (s *FingerprintService) Verify(ctx context.Context, raw string) (*VerifyResult, error) {
	digest := NormalizeDigest(raw)
	if digest == "" {
		return nil, ErrMissingDigest
	}
	if !validDigest(digest) {
		return nil, ErrInvalidDigest
	}

	log := s.Logger.With(zap.String("digest", digest))

	rec, err := s.Store.GetVerification(ctx, digest)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info("Digest nicht in der Registry.")
		return &VerifyResult{Verified: false, Digest: digest}, nil
	}
	if err != nil {
		log.Error("Registry-Abfrage fehlgeschlagen", zap.Error(err))
		return nil, err
	}

	now := time.Now().UTC()
	updated, err := s.Store.IncrementVerification(ctx, digest, now)
	if err != nil {
		log.Warn("Zähler konnte nicht erhöht werden", zap.Error(err))
		updated = rec
	}

	log.Info("Digest verifiziert",
		zap.String("pmid", updated.PMID),
		zap.Int64("verification_count", updated.VerificationCount))

	return &VerifyResult{Verified: true, Digest: digest, Record: updated}, nil
}
