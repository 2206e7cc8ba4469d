package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  \n":         `{"a":1}`,
		"{\"a\":1}":               `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, StripCodeFence(in), in)
	}
}

func TestParseCarDetails_Coercion(t *testing.T) {
	details, err := ParseCarDetails(`{
		"make": "Honda",
		"model": 86,
		"year": 2019.9,
		"color": null,
		"price": "26,499",
		"mileage": "15000 miles",
		"bodyType": true,
		"fuelType": "Gasoline",
		"transmission": "Manual",
		"description": "Clean",
		"confidence": "high"
	}`)
	require.NoError(t, err)

	assert.Equal(t, "Honda", details.Make)
	assert.Equal(t, "86", details.Model)
	assert.Equal(t, 2019, details.Year)
	assert.Equal(t, "", details.Color)
	assert.Equal(t, 26.0, details.Price)
	assert.Equal(t, 15000, details.Mileage)
	assert.Equal(t, "true", details.BodyType)
	assert.Equal(t, 0.5, details.Confidence)
}

func TestParseCarDetails_ConfidenceIsNotClamped(t *testing.T) {
	details, err := ParseCarDetails(`{"confidence": 5}`)
	require.NoError(t, err)
	assert.Equal(t, 5.0, details.Confidence)

	details, err = ParseCarDetails(`{"confidence": 0}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, details.Confidence)
}

func TestParseCarDetails_BackfillsEveryField(t *testing.T) {
	subsets := []string{
		`{}`,
		`{"make":"Ford"}`,
		`{"year":"n/a","price":"unknown","mileage":[],"confidence":{}}`,
		`{"description":"Low miles","transmission":"Automatic","fuelType":"Electric"}`,
	}
	for _, raw := range subsets {
		details, err := ParseCarDetails(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, 0.5, details.Confidence, raw)

		b, err := json.Marshal(details)
		require.NoError(t, err)
		var fields map[string]any
		require.NoError(t, json.Unmarshal(b, &fields))
		assert.Len(t, fields, len(carDetailsSchema), raw)
		for _, f := range carDetailsSchema {
			assert.Contains(t, fields, f.Name, raw)
		}
	}
}

func TestApplySchema_ReportsMissing(t *testing.T) {
	_, missing := applySchema(map[string]any{"make": "Kia", "year": 2020})
	assert.Equal(t, []string{"model", "color", "price", "mileage", "bodyType", "fuelType", "transmission", "description", "confidence"}, missing)
}

func TestCoerceNumbers(t *testing.T) {
	assert.Equal(t, 2022, coerceInt("  2022abc", 0))
	assert.Equal(t, -3, coerceInt(-3.7, 0))
	assert.Equal(t, 0, coerceInt("abc", 0))
	assert.Equal(t, 0, coerceInt(nil, 0))
	assert.Equal(t, 0, coerceInt(false, 0))

	assert.Equal(t, 1500.0, coerceFloat("1.5e3 dollars", 0))
	assert.Equal(t, 0.75, coerceFloat(".75", 0.5))
	assert.Equal(t, 0.5, coerceFloat("", 0.5))
	assert.Equal(t, 0.5, coerceFloat(nil, 0.5))
}
