package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/raine/carhunt/internal/imagedata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	text   string
	err    error
	calls  int
	images []imagedata.Image
}

func (s *stubModel) GenerateFromImage(ctx context.Context, img imagedata.Image, prompt string) (*Generation, error) {
	s.calls++
	s.images = append(s.images, img)
	if s.err != nil {
		return nil, s.err
	}
	return &Generation{Text: s.text}, nil
}

type panickyModel struct{}

func (panickyModel) GenerateFromImage(ctx context.Context, img imagedata.Image, prompt string) (*Generation, error) {
	panic("boom")
}

var validSubmission = imagedata.FromValue("data:image/png;base64," + strings.Repeat("AAAA", 30))

func TestExtract_FencedPartialJSON(t *testing.T) {
	model := &stubModel{text: "```json\n{\"make\":\"Toyota\",\"model\":\"Camry\",\"year\":\"2022\"}\n```"}
	res := NewExtractor("key", model).Extract(context.Background(), validSubmission)

	require.True(t, res.Success, res.Error)
	want := &CarDetails{
		Make:       "Toyota",
		Model:      "Camry",
		Year:       2022,
		Price:      0,
		Confidence: 0.5,
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Errorf("unexpected details (-want +got):\n%s", diff)
	}
	require.Len(t, model.images, 1)
	assert.Equal(t, "image/png", model.images[0].MediaType)
}

func TestExtract_ProseIsParseError(t *testing.T) {
	raw := "I think this is a red Toyota, probably from 2019."
	res := NewExtractor("key", &stubModel{text: raw}).Extract(context.Background(), validSubmission)

	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.Equal(t, "Failed to parse AI response", res.Error)
	assert.Equal(t, raw, res.RawResponse)

	var perr *ParseError
	assert.ErrorAs(t, res.Err, &perr)
}

func TestExtract_NonObjectJSONIsParseError(t *testing.T) {
	for _, raw := range []string{`[1,2,3]`, `42`, `"car"`, `null`, `{"make":"Audi"} trailing`} {
		res := NewExtractor("key", &stubModel{text: raw}).Extract(context.Background(), validSubmission)
		assert.False(t, res.Success, raw)
		assert.Equal(t, "Failed to parse AI response", res.Error, raw)
		assert.Equal(t, raw, res.RawResponse, raw)
	}
}

func TestExtract_MissingCredential(t *testing.T) {
	model := &stubModel{text: "{}"}
	// An invalid submission proves normalization is never reached.
	res := NewExtractor("", model).Extract(context.Background(), imagedata.FromValue(""))

	assert.False(t, res.Success)
	assert.Equal(t, "Gemini API key is not configured", res.Error)
	assert.Equal(t, 0, model.calls)

	var cerr *ConfigurationError
	assert.ErrorAs(t, res.Err, &cerr)
}

func TestExtract_NilModelIsConfigurationError(t *testing.T) {
	res := NewExtractor("key", nil).Extract(context.Background(), validSubmission)
	assert.Equal(t, "Gemini API key is not configured", res.Error)
}

func TestExtract_InvalidImage(t *testing.T) {
	model := &stubModel{text: "{}"}
	res := NewExtractor("key", model).Extract(context.Background(),
		imagedata.FromValue(map[string]any{"data": strings.Repeat("A", 80)}))

	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Error, "invalid image data"), res.Error)
	assert.ErrorIs(t, res.Err, imagedata.ErrMissingPayload)
	assert.Equal(t, 0, model.calls)
}

func TestExtract_ModelError(t *testing.T) {
	model := &stubModel{err: errors.New("failed to generate content: 503 unavailable")}
	res := NewExtractor("key", model).Extract(context.Background(), validSubmission)

	assert.False(t, res.Success)
	assert.Equal(t, "failed to generate content: 503 unavailable", res.Error)
	assert.Empty(t, res.RawResponse)
	assert.Equal(t, 1, model.calls)

	var merr *ModelInvocationError
	assert.ErrorAs(t, res.Err, &merr)
}

func TestExtract_PanicIsRecovered(t *testing.T) {
	res := NewExtractor("key", panickyModel{}).Extract(context.Background(), validSubmission)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
}

func TestExtract_Idempotent(t *testing.T) {
	model := &stubModel{text: `{"make":"BMW","model":"M3","year":2021,"price":"45000.50","mileage":"12,000 km","confidence":"0.8"}`}
	ext := NewExtractor("key", model)

	first, err := json.Marshal(ext.Extract(context.Background(), validSubmission))
	require.NoError(t, err)
	second, err := json.Marshal(ext.Extract(context.Background(), validSubmission))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, 2, model.calls)
}

func TestResult_EnvelopeJSON(t *testing.T) {
	res := NewExtractor("key", &stubModel{text: "nope"}).Extract(context.Background(), validSubmission)
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"Failed to parse AI response","rawResponse":"nope"}`, string(b))

	res = NewExtractor("key", &stubModel{text: "{}"}).Extract(context.Background(), validSubmission)
	b, err = json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"make":"","model":"","year":0,"color":"","price":0,"mileage":0,"bodyType":"","fuelType":"","transmission":"","description":"","confidence":0.5}}`, string(b))
}
