package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"medseal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.PaperRecord{}, &models.SummaryRecord{}, &models.VerificationRecord{}); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	return NewStore(db, zap.NewNop())
}

func TestPaperRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetPaper(ctx, "12345678"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown pmid, got %v", err)
	}

	rec := &models.PaperRecord{
		PMID:     "12345678",
		Title:    "Test Paper",
		Abstract: "Some abstract.",
		Authors:  []string{"Smith J", "Doe A"},
		Journal:  "Journal of Testing",
		PubDate:  "2024 Jan",
		DOI:      "10.1000/test",
		Source:   "pubmed",
	}
	if err := store.PutPaper(ctx, rec); err != nil {
		t.Fatalf("PutPaper returned error: %v", err)
	}

	got, err := store.GetPaper(ctx, "12345678")
	if err != nil {
		t.Fatalf("GetPaper returned error: %v", err)
	}
	if got.Title != "Test Paper" || got.Abstract != "Some abstract." || got.DOI != "10.1000/test" {
		t.Errorf("unexpected record: %+v", got)
	}
	if len(got.Authors) != 2 || got.Authors[0] != "Smith J" {
		t.Errorf("authors did not survive the round trip: %v", got.Authors)
	}
}

func TestPaperUpsertOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &models.PaperRecord{PMID: "1", Title: "Old Title", Source: "pubmed"}
	if err := store.PutPaper(ctx, first); err != nil {
		t.Fatalf("PutPaper returned error: %v", err)
	}
	second := &models.PaperRecord{PMID: "1", Title: "New Title", Source: "pubmed"}
	if err := store.PutPaper(ctx, second); err != nil {
		t.Fatalf("second PutPaper returned error: %v", err)
	}

	got, err := store.GetPaper(ctx, "1")
	if err != nil {
		t.Fatalf("GetPaper returned error: %v", err)
	}
	if got.Title != "New Title" {
		t.Errorf("title = %q, want overwrite to New Title", got.Title)
	}

	var count int64
	if err := store.DB.Model(&models.PaperRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("paper rows = %d, want 1", count)
	}
}

func TestLatestSummaryOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.LatestSummary(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without summaries, got %v", err)
	}

	older := &models.SummaryRecord{SummaryID: "old0000000000000", PMID: "1", Short: "old", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	newer := &models.SummaryRecord{SummaryID: "new0000000000000", PMID: "1", Short: "new", CreatedAt: time.Now().UTC()}
	other := &models.SummaryRecord{SummaryID: "oth0000000000000", PMID: "2", Short: "other", CreatedAt: time.Now().UTC().Add(time.Hour)}
	for _, rec := range []*models.SummaryRecord{older, newer, other} {
		if err := store.PutSummary(ctx, rec); err != nil {
			t.Fatalf("PutSummary returned error: %v", err)
		}
	}

	got, err := store.LatestSummary(ctx, "1")
	if err != nil {
		t.Fatalf("LatestSummary returned error: %v", err)
	}
	if got.SummaryID != "new0000000000000" {
		t.Errorf("latest summary = %s, want the most recent for pmid 1", got.SummaryID)
	}
}

func TestVerificationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := &models.VerificationRecord{
		Digest:          "abc123",
		PMID:            "12345678",
		SummaryID:       "s1",
		PaperTitle:      "Test Paper",
		CreatedAt:       now,
		CreatedEpoch:    now.Unix(),
		SecretKeyUsed:   true,
		ReceiptAttached: true,
		Receipt: &models.Receipt{
			Network:         "Ethereum Sepolia Testnet",
			TransactionHash: "0xabc123",
			GasUsed:         "21000",
			Status:          "success",
		},
	}
	if err := store.PutVerification(ctx, rec); err != nil {
		t.Fatalf("PutVerification returned error: %v", err)
	}

	got, err := store.GetVerification(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetVerification returned error: %v", err)
	}
	if got.PMID != "12345678" || !got.SecretKeyUsed || !got.ReceiptAttached {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Receipt == nil || got.Receipt.TransactionHash != "0xabc123" {
		t.Errorf("receipt did not survive the round trip: %+v", got.Receipt)
	}
	if got.VerificationCount != 0 {
		t.Errorf("fresh verification count = %d, want 0", got.VerificationCount)
	}
}

func TestVerificationUpsertPreservesCounter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := &models.VerificationRecord{Digest: "abc123", PMID: "1", SummaryID: "s1", CreatedAt: now, CreatedEpoch: now.Unix()}
	if err := store.PutVerification(ctx, rec); err != nil {
		t.Fatalf("PutVerification returned error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := store.IncrementVerification(ctx, "abc123", now); err != nil {
			t.Fatalf("IncrementVerification returned error: %v", err)
		}
	}

	// Erneute Registrierung desselben Digests darf den Zähler nicht
	// zurücksetzen.
	again := &models.VerificationRecord{Digest: "abc123", PMID: "1", SummaryID: "s2", PaperTitle: "Updated", CreatedAt: now, CreatedEpoch: now.Unix()}
	if err := store.PutVerification(ctx, again); err != nil {
		t.Fatalf("re-registration returned error: %v", err)
	}

	got, err := store.GetVerification(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetVerification returned error: %v", err)
	}
	if got.VerificationCount != 2 {
		t.Errorf("verification count = %d, want 2 after re-registration", got.VerificationCount)
	}
	if got.SummaryID != "s2" || got.PaperTitle != "Updated" {
		t.Errorf("re-registration did not update fields: %+v", got)
	}
}

func TestIncrementVerification(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.IncrementVerification(ctx, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown digest, got %v", err)
	}

	rec := &models.VerificationRecord{Digest: "abc123", PMID: "1", CreatedAt: now, CreatedEpoch: now.Unix()}
	if err := store.PutVerification(ctx, rec); err != nil {
		t.Fatalf("PutVerification returned error: %v", err)
	}

	for want := int64(1); want <= 5; want++ {
		at := now.Add(time.Duration(want) * time.Minute)
		got, err := store.IncrementVerification(ctx, "abc123", at)
		if err != nil {
			t.Fatalf("IncrementVerification returned error: %v", err)
		}
		if got.VerificationCount != want {
			t.Errorf("verification count = %d, want %d", got.VerificationCount, want)
		}
		if got.LastVerified == nil || got.LastVerified.Unix() != at.Unix() {
			t.Errorf("last verified = %v, want %v", got.LastVerified, at)
		}
	}
}

func TestListVerifications(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, digest := range []string{"d3", "d1", "d2"} {
		offset := map[string]time.Duration{"d1": 0, "d2": time.Minute, "d3": 2 * time.Minute}[digest]
		rec := &models.VerificationRecord{
			Digest:       digest,
			PMID:         "1",
			CreatedAt:    base.Add(offset),
			CreatedEpoch: base.Add(offset).Unix(),
		}
		if err := store.PutVerification(ctx, rec); err != nil {
			t.Fatalf("PutVerification %d returned error: %v", i, err)
		}
	}

	records, err := store.ListVerifications(ctx)
	if err != nil {
		t.Fatalf("ListVerifications returned error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	for i, want := range []string{"d1", "d2", "d3"} {
		if records[i].Digest != want {
			t.Errorf("record %d = %s, want %s (ascending by created_at)", i, records[i].Digest, want)
		}
	}
}
