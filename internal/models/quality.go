package models

// Wikipedia article quality ratings as predicted by the articlequality
// model, ordered best to worst.
const (
	QualityFA    = "FA"
	QualityGA    = "GA"
	QualityB     = "B"
	QualityC     = "C"
	QualityStart = "Start"
	QualityStub  = "Stub"
)

var qualityDescriptions = map[string]string{
	QualityFA:    "Featured Article - Wikipedia's highest quality rating",
	QualityGA:    "Good Article - high quality, well-sourced content",
	QualityB:     "B-class - mostly complete with room for improvement",
	QualityC:     "C-class - substantial content with notable gaps",
	QualityStart: "Start-class - developing article with basic content",
	QualityStub:  "Stub - minimal content placeholder",
}

// ArticleQuality is one normalized prediction from the quality service.
type ArticleQuality struct {
	Quality     string  `json:"quality"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// QualityDescription returns the display text for a predicted rating.
// Unknown ratings get a generic description rather than an error so raw
// predictions round-trip into metadata untouched.
func QualityDescription(quality string) string {
	if d, ok := qualityDescriptions[quality]; ok {
		return d
	}
	return "Unrecognized quality rating"
}
