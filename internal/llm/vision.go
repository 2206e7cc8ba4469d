package llm

import (
	"context"

	"github.com/raine/carhunt/internal/imagedata"
)

// CarDetails is the structured data extracted from a car photo. Every field is
// always populated; see carDetailsSchema for the defaults.
type CarDetails struct {
	Make         string  `json:"make"`
	Model        string  `json:"model"`
	Year         int     `json:"year"`
	Color        string  `json:"color"`
	Price        float64 `json:"price"`
	Mileage      int     `json:"mileage"`
	BodyType     string  `json:"bodyType"`
	FuelType     string  `json:"fuelType"`
	Transmission string  `json:"transmission"`
	Description  string  `json:"description"`
	Confidence   float64 `json:"confidence"`
}

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// Generation is the free-form text a model returned for one request.
type Generation struct {
	Text  string
	Usage Usage
}

// ModelClient sends one image plus an instruction to a generative model.
type ModelClient interface {
	GenerateFromImage(ctx context.Context, img imagedata.Image, prompt string) (*Generation, error)
}

// CarExtractor extracts listing data from an image submission.
type CarExtractor interface {
	Extract(ctx context.Context, sub imagedata.Submission) Result
}
