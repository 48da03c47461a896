package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"medseal/models"
	"medseal/storage"
)

// SummaryStore ist der Ausschnitt der Storage-Schicht für Summaries.
type SummaryStore interface {
	LatestSummary(ctx context.Context, pmid string) (*models.SummaryRecord, error)
	PutSummary(ctx context.Context, rec *models.SummaryRecord) error
}

// TextGenerator erzeugt Text zu einem Prompt. Implementiert vom
// Bedrock-Client; Tests verwenden Fakes.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// summaryLevel beschreibt eine Zusammenfassungsstufe: Tokenbudget,
// Prompt-Vorlage und der Ersatztext, falls die Generierung scheitert.
type summaryLevel struct {
	name      string
	maxTokens int
	fallback  string
	prompt    func(abstract string) string
}

var summaryLevels = []summaryLevel{
	{name: "short", maxTokens: 150, fallback: "Unable to generate short summary.", prompt: shortPrompt},
	{name: "medium", maxTokens: 300, fallback: "Unable to generate medium summary.", prompt: mediumPrompt},
	{name: "long", maxTokens: 600, fallback: "Unable to generate detailed summary.", prompt: longPrompt},
}

// SummaryService erzeugt mehrstufige Zusammenfassungen von Abstracts.
type SummaryService struct {
	Papers    PaperStore
	Summaries SummaryStore
	Gen       TextGenerator
	Logger    *zap.Logger
	ModelID   string

	MaxRetries int
	RetryDelay time.Duration
}

// NewSummaryService erstellt eine neue Instanz des SummaryService.
func NewSummaryService(papers PaperStore, summaries SummaryStore, gen TextGenerator, logger *zap.Logger, modelID string) *SummaryService {
	return &SummaryService{
		Papers:     papers,
		Summaries:  summaries,
		Gen:        gen,
		Logger:     logger,
		ModelID:    modelID,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Summarize liefert die Zusammenfassungen zur PMID. Ohne regenerate wird
// zuerst der Cache geprüft, noch bevor das Paper nachgeschlagen wird. Erst
// wenn alle angeforderten Stufen scheitern, gilt die Generierung als
// fehlgeschlagen; einzelne Ausfälle bekommen einen Ersatztext.
func (s *SummaryService) Summarize(ctx context.Context, pmid, summaryType string, regenerate bool) (*models.SummaryRecord, bool, error) {
	if pmid == "" {
		return nil, false, ErrMissingPMID
	}
	if summaryType == "" {
		summaryType = "all"
	}
	levels, err := levelsFor(summaryType)
	if err != nil {
		return nil, false, err
	}

	log := s.Logger.With(zap.String("pmid", pmid), zap.String("type", summaryType))

	if !regenerate {
		existing, err := s.Summaries.LatestSummary(ctx, pmid)
		if err == nil {
			log.Info("Vorhandene Zusammenfassung aus dem Cache geliefert", zap.String("summary_id", existing.SummaryID))
			return existing, true, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn("Cache-Prüfung fehlgeschlagen", zap.Error(err))
		}
	}

	paper, err := s.Papers.GetPaper(ctx, pmid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, ErrPaperNotFound
	}
	if err != nil {
		log.Error("Paper-Abfrage fehlgeschlagen", zap.Error(err))
		return nil, false, err
	}

	now := time.Now().UTC()
	rec := &models.SummaryRecord{
		SummaryID:   newSummaryID(pmid, paper.Title, now),
		PMID:        pmid,
		CreatedAt:   now,
		Model:       s.ModelID,
		SummaryType: summaryType,
		PaperTitle:  paper.Title,
	}

	failed := 0
	for _, level := range levels {
		text, err := s.generateWithRetry(ctx, level.prompt(paper.Abstract), level.maxTokens)
		if err != nil {
			log.Error("Generierung endgültig fehlgeschlagen", zap.String("level", level.name), zap.Error(err))
			text = level.fallback
			failed++
		} else {
			log.Info("Stufe generiert", zap.String("level", level.name))
		}
		rec.SetLevel(level.name, text)
	}
	if failed == len(levels) {
		return nil, false, ErrGenerationUnavailable
	}

	if err := s.Summaries.PutSummary(ctx, rec); err != nil {
		// Die Antwort enthält die Texte trotzdem.
		log.Error("Konnte Zusammenfassung nicht persistieren", zap.Error(err))
	} else {
		log.Info("Zusammenfassung gespeichert", zap.String("summary_id", rec.SummaryID))
	}

	return rec, false, nil
}

// generateWithRetry versucht die Generierung mehrfach mit linear wachsender
// Wartezeit zwischen den Versuchen.
func (s *SummaryService) generateWithRetry(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.MaxRetries; attempt++ {
		text, err := s.Gen.Generate(ctx, prompt, maxTokens)
		if err == nil {
			return text, nil
		}
		lastErr = err
		s.Logger.Warn("Generierungsversuch fehlgeschlagen",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < s.MaxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.RetryDelay * time.Duration(attempt)):
			}
		}
	}
	return "", lastErr
}

func levelsFor(summaryType string) ([]summaryLevel, error) {
	if summaryType == "all" {
		return summaryLevels, nil
	}
	for _, level := range summaryLevels {
		if level.name == summaryType {
			return []summaryLevel{level}, nil
		}
	}
	return nil, ErrInvalidSummaryType
}

// newSummaryID leitet eine kurze, eindeutige Kennung aus PMID, Zeitpunkt
// und Titel ab.
func newSummaryID(pmid, title string, now time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", pmid, now.UnixNano(), title)))
	return hex.EncodeToString(sum[:])[:16]
}

func shortPrompt(abstract string) string {
	return fmt.Sprintf(`Provide a concise 2-sentence summary of this medical abstract. Focus on the key finding and clinical significance.

Abstract:
%s

Requirements:
- Exactly 2 sentences
- First sentence: Main finding/result
- Second sentence: Clinical significance or implication
- Use clear, plain language suitable for patients
- Avoid technical jargon
- Be accurate to the original research

Summary:`, abstract)
}

func mediumPrompt(abstract string) string {
	return fmt.Sprintf(`Write a clear, professional summary of this medical abstract for healthcare professionals.

Abstract:
%s

Format your summary with these sections clearly marked:
**Objective**: What did the study aim to investigate?
**Methods**: Brief overview of study design and key methods
**Results**: Main findings with key data points
**Conclusion**: Clinical implications

Requirements:
- One coherent paragraph with clear section markers
- Include key statistics if available in the abstract
- Professional tone, but accessible
- Approximately 150-200 words
- Maintain scientific accuracy

Summary:`, abstract)
}

func longPrompt(abstract string) string {
	return fmt.Sprintf(`Create a detailed, structured analysis of this medical abstract.

Abstract:
%s

Provide a comprehensive summary with the following structure:

## Background and Rationale
- What gap in knowledge does this address?
- Why was this study needed?
- What were the researchers' hypotheses?

## Study Design and Methods
- Study type (RCT, cohort, case-control, etc.)
- Population characteristics (size, demographics, inclusion/exclusion)
- Key interventions or exposures
- Primary and secondary outcomes measured
- Statistical methods used

## Key Results
- Primary outcome results with effect sizes and confidence intervals
- Secondary outcomes and subgroup analyses
- Important negative or null findings
- Absolute and relative risks if applicable

## Limitations
- Methodological limitations
- Generalizability concerns
- Potential biases
- Confounding factors not addressed

## Clinical Implications
- How should this change clinical practice?
- What questions remain unanswered?
- Recommendations for implementation
- Cost-effectiveness considerations (if mentioned)

Requirements:
- Comprehensive but concise
- Include specific numbers/statistics from the abstract
- Critical evaluation where appropriate
- Approximately 400-500 words
- Use markdown formatting for readability

Analysis:`, abstract)
}
