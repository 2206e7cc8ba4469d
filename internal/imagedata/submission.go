// Package imagedata turns the image payloads clients send into a canonical
// (base64 payload, media type) pair.
//
// Clients are expected to send ShapeObjectField, which is what FromBytes
// produces. The remaining shapes exist because older form code posted data
// URLs, bare base64 strings and objects keyed by whatever the file reader
// library called the field. ParseSubmission is the only place that sniffs a
// wire value into a shape; everything downstream switches on Shape.
package imagedata

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Shape identifies which wire representation a Submission arrived in.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeObjectField is {"base64": "...", "type": "image/png"}.
	ShapeObjectField
	// ShapeDataURL is "data:image/png;base64,....".
	ShapeDataURL
	// ShapeBareString is a base64 string without any metadata.
	ShapeBareString
	// ShapeNestedKey is an object with the payload under one of NestedKeys.
	ShapeNestedKey
)

func (s Shape) String() string {
	switch s {
	case ShapeObjectField:
		return "object-field"
	case ShapeDataURL:
		return "data-url"
	case ShapeBareString:
		return "bare-string"
	case ShapeNestedKey:
		return "nested-key"
	default:
		return "unknown"
	}
}

// NestedKeys are scanned in order for ShapeNestedKey submissions.
var NestedKeys = []string{"base64", "data", "image", "src", "result"}

// bareStringMinLen is the length a metadata-free string must exceed to be
// treated as a payload at all.
const bareStringMinLen = 100

// Submission is one image as sent by a client.
type Submission struct {
	Shape Shape
	// Text is set for ShapeDataURL and ShapeBareString.
	Text string
	// Fields is set for ShapeObjectField and ShapeNestedKey.
	Fields map[string]any
}

// FromBytes builds the canonical submission for raw image bytes.
func FromBytes(data []byte, mediaType string) Submission {
	return Submission{
		Shape: ShapeObjectField,
		Fields: map[string]any{
			"base64": base64.StdEncoding.EncodeToString(data),
			"type":   mediaType,
		},
	}
}

// FromString classifies a string submission.
func FromString(s string) Submission {
	switch {
	case strings.HasPrefix(s, dataURLScheme):
		return Submission{Shape: ShapeDataURL, Text: s}
	case len(s) > bareStringMinLen:
		return Submission{Shape: ShapeBareString, Text: s}
	default:
		return Submission{Shape: ShapeUnknown, Text: s}
	}
}

// FromValue classifies an already decoded JSON value. The checks run in the
// order the legacy clients are most likely to match, and the first hit wins.
func FromValue(v any) Submission {
	switch t := v.(type) {
	case string:
		return FromString(t)
	case map[string]any:
		if s, ok := t["base64"].(string); ok && s != "" {
			return Submission{Shape: ShapeObjectField, Fields: t}
		}
		return Submission{Shape: ShapeNestedKey, Fields: t}
	default:
		return Submission{Shape: ShapeUnknown}
	}
}

// ParseSubmission decodes a raw JSON body into a Submission.
func ParseSubmission(raw []byte) (Submission, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Submission{}, &NormalizationError{
			Kind:   ErrMissingPayload,
			Detail: fmt.Sprintf("request body is not JSON: %v", err),
		}
	}
	return FromValue(v), nil
}

// describe summarises a submission for error messages without echoing the
// payload itself.
func (s Submission) describe() string {
	if s.Fields != nil {
		keys := make([]string, 0, len(s.Fields))
		for k := range s.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("received %s object, keys: %s", s.Shape, strings.Join(keys, ", "))
	}
	return fmt.Sprintf("received %s string of length %d", s.Shape, len(s.Text))
}
