package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"medseal/models"
	"medseal/storage"
)

type fakeSummaryStore struct {
	latest *models.SummaryRecord
	getErr error
	putErr error
	stored []*models.SummaryRecord
}

func (f *fakeSummaryStore) LatestSummary(_ context.Context, _ string) (*models.SummaryRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.latest == nil {
		return nil, storage.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeSummaryStore) PutSummary(_ context.Context, rec *models.SummaryRecord) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.stored = append(f.stored, rec)
	f.latest = rec
	return nil
}

// fakeGenerator beantwortet Prompts mit einem vom Tokenbudget abgeleiteten
// Text. failFirst lässt die ersten Aufrufe scheitern, failBudgets bestimmte
// Stufen dauerhaft.
type fakeGenerator struct {
	calls       int
	failFirst   int
	failBudgets map[int]bool
}

func (g *fakeGenerator) Generate(_ context.Context, _ string, maxTokens int) (string, error) {
	g.calls++
	if g.failBudgets[maxTokens] {
		return "", errors.New("model unavailable")
	}
	if g.calls <= g.failFirst {
		return "", errors.New("throttled")
	}
	return fmt.Sprintf("generated-%d", maxTokens), nil
}

func newTestSummaryService(papers *fakePaperStore, summaries *fakeSummaryStore, gen *fakeGenerator) *SummaryService {
	svc := NewSummaryService(papers, summaries, gen, zap.NewNop(), "amazon.nova-lite-v1:0")
	svc.RetryDelay = time.Millisecond
	return svc
}

func paperStoreWith(pmid, title, abstract string) *fakePaperStore {
	store := newFakePaperStore()
	store.papers[pmid] = &models.PaperRecord{PMID: pmid, Title: title, Abstract: abstract}
	return store
}

func TestSummarizeValidation(t *testing.T) {
	svc := newTestSummaryService(newFakePaperStore(), &fakeSummaryStore{}, &fakeGenerator{})

	if _, _, err := svc.Summarize(context.Background(), "", "all", false); !errors.Is(err, ErrMissingPMID) {
		t.Errorf("empty pmid: expected ErrMissingPMID, got %v", err)
	}
	if _, _, err := svc.Summarize(context.Background(), "1", "banana", false); !errors.Is(err, ErrInvalidSummaryType) {
		t.Errorf("unknown type: expected ErrInvalidSummaryType, got %v", err)
	}
}

func TestSummarizeCacheHitPrecedesPaperLookup(t *testing.T) {
	// Das Paper fehlt absichtlich: ein Cache-Treffer darf gar nicht erst
	// nachschlagen.
	summaries := &fakeSummaryStore{latest: &models.SummaryRecord{SummaryID: "cached01", PMID: "1", Short: "s"}}
	gen := &fakeGenerator{}
	svc := newTestSummaryService(newFakePaperStore(), summaries, gen)

	rec, cached, err := svc.Summarize(context.Background(), "1", "all", false)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if !cached {
		t.Error("expected cached=true")
	}
	if rec.SummaryID != "cached01" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if gen.calls != 0 {
		t.Errorf("generator called on cache hit (%d calls)", gen.calls)
	}
}

func TestSummarizePaperNotFound(t *testing.T) {
	svc := newTestSummaryService(newFakePaperStore(), &fakeSummaryStore{}, &fakeGenerator{})

	_, _, err := svc.Summarize(context.Background(), "99999999", "all", false)
	if !errors.Is(err, ErrPaperNotFound) {
		t.Errorf("expected ErrPaperNotFound, got %v", err)
	}
}

func TestSummarizeGeneratesAllLevels(t *testing.T) {
	papers := paperStoreWith("1", "Title", "Abstract text.")
	summaries := &fakeSummaryStore{}
	gen := &fakeGenerator{}
	svc := newTestSummaryService(papers, summaries, gen)

	rec, cached, err := svc.Summarize(context.Background(), "1", "", false)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if cached {
		t.Error("expected cached=false")
	}
	if rec.Short != "generated-150" || rec.Medium != "generated-300" || rec.Long != "generated-600" {
		t.Errorf("unexpected level texts: %+v", rec)
	}
	if rec.SummaryType != "all" {
		t.Errorf("summary type = %s, want all (default)", rec.SummaryType)
	}
	if rec.PaperTitle != "Title" || rec.Model != "amazon.nova-lite-v1:0" {
		t.Errorf("unexpected metadata: %+v", rec)
	}
	if len(rec.SummaryID) != 16 {
		t.Errorf("summary id %q must be 16 hex characters", rec.SummaryID)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3", gen.calls)
	}
	if len(summaries.stored) != 1 {
		t.Errorf("stored records = %d, want 1", len(summaries.stored))
	}
}

func TestSummarizeSingleLevel(t *testing.T) {
	svc := newTestSummaryService(paperStoreWith("1", "Title", "Abstract."), &fakeSummaryStore{}, &fakeGenerator{})

	rec, _, err := svc.Summarize(context.Background(), "1", "medium", false)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if rec.Medium != "generated-300" {
		t.Errorf("medium = %q", rec.Medium)
	}
	if rec.Short != "" || rec.Long != "" {
		t.Errorf("unrequested levels must stay empty: %+v", rec)
	}
	if rec.SummaryType != "medium" {
		t.Errorf("summary type = %s, want medium", rec.SummaryType)
	}
}

func TestSummarizeRegenerateSkipsCache(t *testing.T) {
	summaries := &fakeSummaryStore{latest: &models.SummaryRecord{SummaryID: "cached01", PMID: "1"}}
	gen := &fakeGenerator{}
	svc := newTestSummaryService(paperStoreWith("1", "Title", "Abstract."), summaries, gen)

	rec, cached, err := svc.Summarize(context.Background(), "1", "all", true)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if cached {
		t.Error("expected cached=false with regenerate")
	}
	if rec.SummaryID == "cached01" {
		t.Error("regenerate must produce a fresh record")
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3", gen.calls)
	}
}

func TestSummarizeRetriesBeforeSucceeding(t *testing.T) {
	gen := &fakeGenerator{failFirst: 2}
	svc := newTestSummaryService(paperStoreWith("1", "Title", "Abstract."), &fakeSummaryStore{}, gen)

	rec, _, err := svc.Summarize(context.Background(), "1", "short", false)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if rec.Short != "generated-150" {
		t.Errorf("short = %q", rec.Short)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3 (two failures, one success)", gen.calls)
	}
}

func TestSummarizePartialFailureUsesFallback(t *testing.T) {
	gen := &fakeGenerator{failBudgets: map[int]bool{150: true}}
	svc := newTestSummaryService(paperStoreWith("1", "Title", "Abstract."), &fakeSummaryStore{}, gen)

	rec, _, err := svc.Summarize(context.Background(), "1", "all", false)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if rec.Short != "Unable to generate short summary." {
		t.Errorf("short fallback = %q", rec.Short)
	}
	if rec.Medium != "generated-300" || rec.Long != "generated-600" {
		t.Errorf("surviving levels wrong: %+v", rec)
	}
}

func TestSummarizeAllLevelsFailing(t *testing.T) {
	gen := &fakeGenerator{failBudgets: map[int]bool{150: true, 300: true, 600: true}}
	svc := newTestSummaryService(paperStoreWith("1", "Title", "Abstract."), &fakeSummaryStore{}, gen)

	if _, _, err := svc.Summarize(context.Background(), "1", "all", false); !errors.Is(err, ErrGenerationUnavailable) {
		t.Errorf("expected ErrGenerationUnavailable, got %v", err)
	}
	if _, _, err := svc.Summarize(context.Background(), "1", "short", false); !errors.Is(err, ErrGenerationUnavailable) {
		t.Errorf("single level: expected ErrGenerationUnavailable, got %v", err)
	}
}

func TestSummarizePersistFailureIsNotFatal(t *testing.T) {
	summaries := &fakeSummaryStore{putErr: errors.New("db down")}
	svc := newTestSummaryService(paperStoreWith("1", "Title", "Abstract."), summaries, &fakeGenerator{})

	rec, _, err := svc.Summarize(context.Background(), "1", "all", false)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if rec.Short == "" {
		t.Error("record must contain the generated texts despite the storage failure")
	}
}

func TestNewSummaryID(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := newSummaryID("1", "Title", now)
	if len(first) != 16 {
		t.Fatalf("id length = %d, want 16", len(first))
	}
	if first != newSummaryID("1", "Title", now) {
		t.Error("id must be deterministic for identical input")
	}
	if first == newSummaryID("1", "Title", now.Add(time.Nanosecond)) {
		t.Error("different timestamps must produce different ids")
	}
}
