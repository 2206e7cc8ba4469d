package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// fieldSpec declares one required field of the model's answer and the value
// used when it is absent or cannot be coerced to the field's type.
type fieldSpec struct {
	Name    string
	Default any
}

// carDetailsSchema is the complete tolerance policy for model output. The
// Go type of Default decides the coercion applied to the field.
var carDetailsSchema = []fieldSpec{
	{Name: "make", Default: ""},
	{Name: "model", Default: ""},
	{Name: "year", Default: 0},
	{Name: "color", Default: ""},
	{Name: "price", Default: 0.0},
	{Name: "mileage", Default: 0},
	{Name: "bodyType", Default: ""},
	{Name: "fuelType", Default: ""},
	{Name: "transmission", Default: ""},
	{Name: "description", Default: ""},
	{Name: "confidence", Default: 0.5},
}

func (d *CarDetails) fields() map[string]any {
	return map[string]any{
		"make":         &d.Make,
		"model":        &d.Model,
		"year":         &d.Year,
		"color":        &d.Color,
		"price":        &d.Price,
		"mileage":      &d.Mileage,
		"bodyType":     &d.BodyType,
		"fuelType":     &d.FuelType,
		"transmission": &d.Transmission,
		"description":  &d.Description,
		"confidence":   &d.Confidence,
	}
}

// applySchema backfills and coerces a parsed record. It never fails; the
// names of absent fields are returned for logging.
func applySchema(record map[string]any) (*CarDetails, []string) {
	details := &CarDetails{}
	targets := details.fields()

	var missing []string
	for _, f := range carDetailsSchema {
		v, ok := record[f.Name]
		if !ok {
			missing = append(missing, f.Name)
		}

		switch dst := targets[f.Name].(type) {
		case *string:
			*dst = coerceText(v)
		case *int:
			*dst = coerceInt(v, f.Default.(int))
		case *float64:
			*dst = coerceFloat(v, f.Default.(float64))
		default:
			panic(fmt.Sprintf("llm: schema field %q has no target", f.Name))
		}
	}
	return details, missing
}

var (
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloat = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)
)

func coerceText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// coerceInt reads the leading integer of v. Numbers are truncated toward zero.
func coerceInt(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
			return def
		}
		return int(f)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || math.Abs(t) > math.MaxInt32 {
			return def
		}
		return int(t)
	case string:
		m := leadingInt.FindString(strings.TrimSpace(t))
		if m == "" {
			return def
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

// coerceFloat reads the leading decimal number of v.
func coerceFloat(v any, def float64) float64 {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		s = leadingFloat.FindString(strings.TrimSpace(t))
	default:
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}
