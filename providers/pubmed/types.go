// Package pubmed enthält die Logik für die Interaktion mit den PubMed E-utilities.
package pubmed

import (
	"encoding/json"
	"encoding/xml"
)

// ESummaryResponse repräsentiert die JSON-Antwort von ESummary. The result
// object maps each UID to its document summary next to a "uids" array, so the
// per-paper payload has to be pulled out by key.
type ESummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

// DocSummary ist der Metadaten-Block eines einzelnen Papers in der
// ESummary-Antwort.
type DocSummary struct {
	Title string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	FullJournalName string `json:"fulljournalname"`
	PubDate         string `json:"pubdate"`
	ELocationID     string `json:"elocationid"`
	ISSN            string `json:"issn"`
	Volume          string `json:"volume"`
	Issue           string `json:"issue"`
	Pages           string `json:"pages"`
	PMCID           string `json:"pmcid"`
}

// PubmedArticleSet repräsentiert das gesamte XML-Dokument von efetch.
type PubmedArticleSet struct {
	XMLName      xml.Name            `xml:"PubmedArticleSet"`
	Articles     []PubmedArticle     `xml:"PubmedArticle"`
	BookArticles []PubmedBookArticle `xml:"PubmedBookArticle"`
}

// PubmedArticle repräsentiert einen einzelnen Artikel in der XML-Antwort.
type PubmedArticle struct {
	MedlineCitation struct {
		Article struct {
			Abstract struct {
				Sections []AbstractSection `xml:"AbstractText"`
			} `xml:"Abstract"`
		} `xml:"Article"`
		OtherAbstracts []struct {
			Sections []AbstractSection `xml:"AbstractText"`
		} `xml:"OtherAbstract"`
	} `xml:"MedlineCitation"`
}

// AbstractSection ist ein einzelnes AbstractText-Element; Label trägt bei
// strukturierten Abstracts den Abschnittsnamen.
type AbstractSection struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",chardata"`
}

// PubmedBookArticle deckt den Buchkapitel-Sonderfall ab.
type PubmedBookArticle struct {
	BookDocument struct {
		Book struct {
			BookTitle string `xml:"BookTitle"`
		} `xml:"Book"`
	} `xml:"BookDocument"`
}
