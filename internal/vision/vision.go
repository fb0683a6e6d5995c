// Package vision mediates calls to ranked remote vision-language models and
// converts their free-text replies into well-formed nutrition records.
package vision

import (
	"context"
	"time"

	"github.com/mealmetrics/mealmetrics/internal/imageprep"
)

// Health categories a meal can fall into. Unknown is used when the model
// reply carried no usable category token.
const (
	HealthHealthy  = "healthy"
	HealthModerate = "moderate"
	HealthJunk     = "junk"
	HealthUnknown  = "unknown"
)

// FoodItem is one identified component of a meal.
type FoodItem struct {
	Name     string  `json:"name"`
	Portion  string  `json:"portion,omitempty"`
	Calories float64 `json:"calories"`
}

// AnalysisResult is the validated nutrition record handed to callers.
// Calories is always numeric and non-negative, Confidence is always present
// in [0,100], and Description is never empty (a fallback record carries a
// generic placeholder). Recovered reports whether the record came from
// repair or fallback rather than a clean parse; it is how degradation is
// communicated, never an error.
type AnalysisResult struct {
	Description    string     `json:"description"`
	Items          []FoodItem `json:"food_items,omitempty"`
	Calories       float64    `json:"total_calories"`
	Protein        *float64   `json:"protein_g,omitempty"`
	Carbs          *float64   `json:"carbs_g,omitempty"`
	Fat            *float64   `json:"fat_g,omitempty"`
	Confidence     int        `json:"confidence"`
	HealthCategory string     `json:"health_category"`
	Notes          string     `json:"notes,omitempty"`
	Recovered      bool       `json:"recovered"`
}

// ModelClient sends one prepared image plus instruction prompt to a remote
// model and returns the raw text reply. Implementations map provider
// failures to *RequestError so the gateway can classify them.
type ModelClient interface {
	Generate(ctx context.Context, model string, payload *imageprep.Payload, prompt string) (string, error)
}

// ModelSpec is one entry of the ranked model list. The list is static
// configuration, immutable at runtime; one retry state machine iterates it
// instead of per-model code.
type ModelSpec struct {
	// Name is the provider-side model identifier,
	// e.g. "google/gemini-2.5-flash".
	Name string
	// Client is the backend that reaches this model.
	Client ModelClient
	// Timeout bounds a single attempt. Remote vision inference latency is
	// highly variable, so this is deliberately generous.
	Timeout time.Duration
	// MaxRetries is the number of re-attempts on this model after the
	// first try.
	MaxRetries int
}
