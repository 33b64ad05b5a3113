package models

import (
	"regexp"
	"strings"
)

// Source types carried on every stored vector.
const (
	SourcePDF       = "pdf"
	SourceWikipedia = "wikipedia"
)

var lpNumberRe = regexp.MustCompile(`^LP-\d{5}$`)

// ValidLpNumber reports whether s is a canonical LPC designation number
// such as "LP-00001".
func ValidLpNumber(s string) bool {
	return lpNumberRe.MatchString(s)
}

// NormalizeLpNumber canonicalizes a designation number for lookups and
// comparisons. The reporting API is case-insensitive about LP numbers;
// stored vectors are not.
func NormalizeLpNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Landmark is a designated NYC landmark as returned by the reporting API.
type Landmark struct {
	LpNumber       string `json:"lpNumber"`
	Name           string `json:"name"`
	Borough        string `json:"borough"`
	ObjectType     string `json:"objectType"`
	Street         string `json:"street"`
	ArchitectName  string `json:"architect"`
	Style          string `json:"style"`
	Neighborhood   string `json:"neighborhood"`
	DateDesignated string `json:"dateDesignated"`
	PdfReportUrl   string `json:"pdfReportUrl"`
	PhotoStatus    bool   `json:"photoStatus"`
	MapStatus      bool   `json:"mapStatus"`

	// Landmark-level coordinates; zero when the reporting API omits
	// them.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Building is one structure associated with a landmark designation.
type Building struct {
	LpNumber  string  `json:"lpNumber"`
	Name      string  `json:"name"`
	BinNumber int     `json:"binNumber"`
	Block     int     `json:"block"`
	Lot       int     `json:"lot"`
	BBL       string  `json:"bbl"`
	Address   string  `json:"designatedAddress"`
	Borough   string  `json:"boroughId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PlutoRecord carries the tax-lot attributes joined from the PLUTO dataset.
type PlutoRecord struct {
	LpNumber         string  `json:"lpNumber"`
	YearBuilt        string  `json:"yearBuilt"`
	LandUse          string  `json:"landUse"`
	HistoricDistrict string  `json:"historicDistrict"`
	ZoningDistrict   string  `json:"zoneDist"`
	LotArea          float64 `json:"lotArea"`
	BuildingClass    string  `json:"bldgClass"`
}

// WikipediaArticleRef is a catalog pointer to a Wikipedia article about
// a landmark. Only refs whose URL is on wikipedia.org are processed.
type WikipediaArticleRef struct {
	LpNumber   string `json:"lpNumber"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	RecordType string `json:"recordType"`
}

// WikipediaArticle is a fetched and cleaned article body.
type WikipediaArticle struct {
	Title      string
	URL        string
	Text       string
	RevisionID int64
	Quality    *ArticleQuality
}

// ArticleTitleSlug normalizes an article title for use inside a vector
// ID: spaces become underscores and every rune outside [A-Za-z0-9_-] is
// dropped. The result is stable under repeated application.
func ArticleTitleSlug(title string) string {
	replaced := strings.ReplaceAll(title, " ", "_")
	var b strings.Builder
	b.Grow(len(replaced))
	for _, r := range replaced {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
