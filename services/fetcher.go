package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"medseal/config"
	"medseal/models"
	"medseal/providers"
	"medseal/providers/pubmed"
	"medseal/storage"
)

// PaperStore ist der Ausschnitt der Storage-Schicht, den der FetchService
// benötigt.
type PaperStore interface {
	GetPaper(ctx context.Context, pmid string) (*models.PaperRecord, error)
	PutPaper(ctx context.Context, rec *models.PaperRecord) error
}

// FetchService kümmert sich um die Orchestrierung des gesamten Fetch-Prozesses:
// erst Cache, dann Upstream, dann Persistenz.
type FetchService struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    PaperStore
	Provider providers.MetadataProvider
}

// NewFetchService erstellt eine neue Instanz des FetchService.
func NewFetchService(cfg *config.Config, store PaperStore, provider providers.MetadataProvider, logger *zap.Logger) *FetchService {
	return &FetchService{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Provider: provider,
	}
}

// FetchOrGet liefert den Datensatz zur PMID. Ein Cache-Treffer wird mit
// cached=true zurückgegeben, ohne den Upstream zu kontaktieren. Fehler beim
// Cache-Lesen oder beim Persistieren brechen den Abruf nicht ab.
func (f *FetchService) FetchOrGet(ctx context.Context, pmid string) (*models.PaperRecord, bool, error) {
	if pmid == "" {
		return nil, false, ErrMissingPMID
	}
	if err := pubmed.ValidatePMID(pmid); err != nil {
		return nil, false, err
	}

	log := f.Logger.With(zap.String("pmid", pmid))

	cached, err := f.Store.GetPaper(ctx, pmid)
	if err == nil {
		log.Info("Paper aus dem Cache geliefert.")
		return cached, true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		log.Warn("Cache-Lesen fehlgeschlagen, hole direkt vom Upstream", zap.Error(err))
	}

	log.Info("Hole Paper vom Upstream", zap.String("provider", f.Provider.Name()))
	rec, err := f.Provider.FetchByID(ctx, pmid)
	if err != nil {
		log.Error("Upstream-Abruf fehlgeschlagen", zap.Error(err))
		return nil, false, err
	}

	if err := f.Store.PutPaper(ctx, rec); err != nil {
		// Nicht fatal: der Aufrufer bekommt die Daten trotzdem.
		log.Warn("Konnte Paper nicht persistieren", zap.Error(err))
	} else {
		log.Info("Paper persistiert", zap.String("title", rec.Title))
	}

	return rec, false, nil
}
