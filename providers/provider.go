package providers

import (
	"context"

	"medseal/models"
)

// MetadataProvider ist das Interface, das jeder Literatur-Provider implementieren muss.
type MetadataProvider interface {
	// FetchByID holt Metadaten und Abstract für einen Identifier und gibt ein
	// standardisiertes PaperRecord zurück.
	FetchByID(ctx context.Context, id string) (*models.PaperRecord, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "pubmed").
	Name() string
}
