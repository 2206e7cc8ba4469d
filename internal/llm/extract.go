package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/raine/carhunt/internal/imagedata"
	"github.com/rs/zerolog/log"
)

var carDetailsPrompt = strings.TrimSpace(dedent.Dedent(`
	Analyze this car image and extract the following information:
	1. Make (manufacturer)
	2. Model
	3. Year (approximately)
	4. Color
	5. Body type (SUV, Sedan, Hatchback, etc.)
	6. Mileage (estimate if not visible)
	7. Fuel type (your best guess)
	8. Transmission type (your best guess)
	9. Price (your best guess in USD)
	10. Short description to be added to a car listing

	Format your response as a clean JSON object with these fields:
	{
	  "make": "",
	  "model": "",
	  "year": 0000,
	  "color": "",
	  "price": 0000,
	  "mileage": 0000,
	  "bodyType": "",
	  "fuelType": "",
	  "transmission": "",
	  "description": "",
	  "confidence": 0.0
	}

	Year, price and mileage must be plain numbers.
	For confidence, provide a value between 0 and 1 representing how confident you are in your overall identification.
	Only respond with the JSON object, nothing else.
`))

const parseFailureMessage = "Failed to parse AI response"

// ConfigurationError means the extractor cannot reach the model at all.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

// ModelInvocationError wraps transport or provider failures.
type ModelInvocationError struct {
	Err error
}

func (e *ModelInvocationError) Error() string { return e.Err.Error() }
func (e *ModelInvocationError) Unwrap() error { return e.Err }

// ParseError means the model answered with something that is not a JSON
// object. Raw is the unmodified response text.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string { return parseFailureMessage }
func (e *ParseError) Unwrap() error { return e.Err }

// Result is the envelope returned to callers of Extract.
type Result struct {
	Success     bool        `json:"success"`
	Data        *CarDetails `json:"data,omitempty"`
	Error       string      `json:"error,omitempty"`
	RawResponse string      `json:"rawResponse,omitempty"`

	// Err keeps the typed failure for callers that map it to a status code.
	Err error `json:"-"`
}

func failure(err error) Result {
	r := Result{Success: false, Error: err.Error(), Err: err}
	var perr *ParseError
	if errors.As(err, &perr) {
		r.RawResponse = perr.Raw
	}
	return r
}

// Extractor runs the image -> model -> structured data pipeline. It holds no
// per-call state and is safe for concurrent use.
type Extractor struct {
	apiKey string
	model  ModelClient
}

// NewExtractor creates an extractor. An empty apiKey or nil model is allowed;
// every call then fails with a ConfigurationError.
func NewExtractor(apiKey string, model ModelClient) *Extractor {
	return &Extractor{apiKey: apiKey, model: model}
}

// Extract never panics and never returns a Go error; all failures are
// reported through the Result envelope.
func (e *Extractor) Extract(ctx context.Context, sub imagedata.Submission) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("car extraction panicked")
			res = failure(fmt.Errorf("unexpected extraction failure: %v", r))
		}
	}()

	details, err := e.extract(ctx, sub)
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, Data: details}
}

func (e *Extractor) extract(ctx context.Context, sub imagedata.Submission) (*CarDetails, error) {
	if e.apiKey == "" || e.model == nil {
		return nil, &ConfigurationError{Msg: "Gemini API key is not configured"}
	}

	img, err := imagedata.Normalize(sub)
	if err != nil {
		log.Warn().Err(err).Str("shape", sub.Shape.String()).Msg("rejected image submission")
		return nil, fmt.Errorf("invalid image data: %w", err)
	}

	log.Debug().
		Str("shape", sub.Shape.String()).
		Str("mimeType", img.MediaType).
		Int("payloadLength", len(img.Payload)).
		Msg("sending car image to model")

	gen, err := e.model.GenerateFromImage(ctx, img, carDetailsPrompt)
	if err != nil {
		return nil, &ModelInvocationError{Err: err}
	}

	return ParseCarDetails(gen.Text)
}

var fencePattern = regexp.MustCompile("```(?:json)?\\n?")

// StripCodeFence removes markdown code fences and surrounding whitespace.
func StripCodeFence(text string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
}

// ParseCarDetails turns raw model text into CarDetails, backfilling absent
// fields. The only failure is text that is not a JSON object.
func ParseCarDetails(text string) (*CarDetails, error) {
	cleaned := StripCodeFence(text)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()

	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		log.Warn().Err(err).Str("response", text).Msg("failed to parse model response")
		return nil, &ParseError{Raw: text, Err: err}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF || record == nil {
		log.Warn().Str("response", text).Msg("model response is not a single JSON object")
		return nil, &ParseError{Raw: text, Err: errors.New("response is not a single JSON object")}
	}

	details, missing := applySchema(record)
	if len(missing) > 0 {
		log.Warn().Strs("missingFields", missing).Msg("backfilled fields absent from model response")
	}
	return details, nil
}
