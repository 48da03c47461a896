package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"medseal/config"
	"medseal/models"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// Fetcher kapselt die Logik zur Interaktion mit den PubMed E-utilities.
// Der Rate-Limiter ist Instanz-Zustand, kein Paket-Global: jede Instanz
// drosselt nur ihre eigenen Aufrufe (~3/s laut NCBI-Richtlinie).
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	limiter *rate.Limiter
}

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	rps := cfg.PubMedRateLimit
	if rps <= 0 {
		rps = 3
	}
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "pubmed"
}

// ValidatePMID prüft die Identifier-Regel: nur Ziffern, 1-20 Zeichen.
func ValidatePMID(pmid string) error {
	if pmid == "" || len(pmid) > 20 {
		return ErrInvalidID
	}
	for _, r := range pmid {
		if r < '0' || r > '9' {
			return ErrInvalidID
		}
	}
	return nil
}

// FetchByID holt Metadaten (esummary) und Abstract (efetch) für eine PMID und
// baut daraus ein PaperRecord.
func (f *Fetcher) FetchByID(ctx context.Context, pmid string) (*models.PaperRecord, error) {
	log := f.Logger.With(zap.String("pmid", pmid))
	log.Info("Fetching paper from PubMed")

	paper, err := f.fetchMetadata(ctx, pmid)
	if err != nil {
		log.Error("ESummary metadata fetch failed", zap.Error(err))
		return nil, err
	}

	abstract, err := f.fetchAbstract(ctx, pmid)
	if err != nil {
		log.Error("EFetch abstract fetch failed", zap.Error(err))
		return nil, err
	}

	paper.Abstract = abstract
	paper.FetchedAt = time.Now().UTC()
	paper.Source = "pubmed"
	return paper, nil
}

// fetchMetadata holt die strukturierten Metadaten via esummary.
func (f *Fetcher) fetchMetadata(ctx context.Context, pmid string) (*models.PaperRecord, error) {
	body, err := f.get(ctx, f.buildURL("esummary", pmid, "&retmode=json"), "esummary")
	if err != nil {
		return nil, err
	}

	var resp ESummaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("esummary json decode failed: %w", err)
	}

	raw, ok := resp.Result[pmid]
	if !ok {
		return nil, fmt.Errorf("esummary result contains no entry for pmid %s", pmid)
	}
	var doc DocSummary
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("esummary docsum decode failed: %w", err)
	}

	authors := make([]string, 0, len(doc.Authors))
	for _, a := range doc.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	title := doc.Title
	if title == "" {
		title = "Title not available"
	}

	return &models.PaperRecord{
		PMID:    pmid,
		Title:   title,
		Authors: authors,
		Journal: doc.FullJournalName,
		PubDate: doc.PubDate,
		DOI:     strings.ReplaceAll(doc.ELocationID, "doi: ", ""),
		ISSN:    doc.ISSN,
		Volume:  doc.Volume,
		Issue:   doc.Issue,
		Pages:   doc.Pages,
		PMCID:   doc.PMCID,
	}, nil
}

// fetchAbstract holt den Abstract-Text via efetch (XML).
func (f *Fetcher) fetchAbstract(ctx context.Context, pmid string) (string, error) {
	body, err := f.get(ctx, f.buildURL("efetch", pmid, "&retmode=xml&rettype=abstract"), "efetch")
	if err != nil {
		return "", err
	}

	var articleSet PubmedArticleSet
	if err := xml.Unmarshal(body, &articleSet); err != nil {
		f.Logger.Error("XML parsing of efetch answer failed", zap.String("pmid", pmid), zap.Error(err))
		return "Error parsing abstract XML.", nil
	}

	return extractAbstract(&articleSet), nil
}

// extractAbstract setzt den Abstract aus dem efetch-Dokument zusammen:
// strukturierte Abstracts mit Label-Abschnitten, OtherAbstract-Einträge und
// der Buchkapitel-Sonderfall.
func extractAbstract(doc *PubmedArticleSet) string {
	var parts []string

	for _, article := range doc.Articles {
		for _, sec := range article.MedlineCitation.Article.Abstract.Sections {
			text := strings.TrimSpace(sec.Text)
			if text == "" {
				continue
			}
			if sec.Label != "" {
				parts = append(parts, fmt.Sprintf("**%s:** %s", sec.Label, text))
			} else {
				parts = append(parts, text)
			}
		}
		for _, other := range article.MedlineCitation.OtherAbstracts {
			for _, sec := range other.Sections {
				if text := strings.TrimSpace(sec.Text); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}

	if len(parts) > 0 {
		return strings.Join(parts, "\n\n")
	}

	for _, book := range doc.BookArticles {
		if title := strings.TrimSpace(book.BookDocument.Book.BookTitle); title != "" {
			return fmt.Sprintf("This is a book chapter from: %s", title)
		}
	}

	return "Abstract not available for this article."
}

// buildURL baut eine E-utilities-URL; der optionale API-Key wird angehängt.
func (f *Fetcher) buildURL(endpoint, pmid, params string) string {
	u := fmt.Sprintf("%s/%s.fcgi?db=pubmed&id=%s%s", f.Config.PubMedBaseURL, endpoint, pmid, params)
	if f.Config.PubMedAPIKey != "" {
		u += "&api_key=" + f.Config.PubMedAPIKey
	}
	return u
}

// get führt einen einzelnen, gedrosselten Aufruf gegen die E-utilities aus.
func (f *Fetcher) get(ctx context.Context, rawURL, endpoint string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fmt.Sprintf("medseal/1.0 (mailto:%s)", f.Config.PubMedEmail))

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pubmed %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	return io.ReadAll(resp.Body)
}
