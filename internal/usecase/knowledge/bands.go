package knowledge

import "fmt"

// Bands are the thresholds for the confidence indicator.
type Bands struct {
	High   float64
	Medium float64
}

// DefaultBands: above 0.7 is green, above 0.4 yellow.
var DefaultBands = Bands{High: 0.7, Medium: 0.4}

// Emoji returns the indicator for c.
func (b Bands) Emoji(c float64) string {
	switch {
	case c > b.High:
		return "🟢"
	case c > b.Medium:
		return "🟡"
	default:
		return "🔴"
	}
}

// Annotate appends the confidence line to response.
func (b Bands) Annotate(response string, c float64) string {
	return fmt.Sprintf("%s\n\n%s *Confidence: %.0f%%*", response, b.Emoji(c), c*100)
}
