package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel-Fehler der Service-Schicht. Die HTTP-Handler mappen sie auf
// Statuscodes und stabile Fehlermeldungen.
var (
	ErrMissingPMID           = errors.New("pmid is required")
	ErrPaperNotFound         = errors.New("paper not found")
	ErrInvalidSummaryType    = errors.New("invalid summary type")
	ErrGenerationUnavailable = errors.New("summary generation failed for all requested levels")
	ErrMissingDigest         = errors.New("digest is required")
	ErrInvalidDigest         = errors.New("digest must be 64 hex characters")
)

// MissingFieldError nennt alle fehlenden Pflichtfelder einer Anfrage auf
// einmal, damit der Aufrufer nicht Feld für Feld raten muss.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}
