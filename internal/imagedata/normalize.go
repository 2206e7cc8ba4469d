package imagedata

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"unicode"
)

const (
	// DefaultMediaType is used whenever a submission does not declare one.
	DefaultMediaType = "image/jpeg"

	// MinPayloadLen rejects payloads that are obviously truncated.
	MinPayloadLen = 100

	dataURLScheme = "data:"
)

var (
	ErrMissingPayload  = errors.New("failed to extract valid base64 data")
	ErrInvalidEncoding = errors.New("invalid base64 data format")
)

// NormalizationError reports why a submission could not be normalized.
// Kind is one of ErrMissingPayload or ErrInvalidEncoding.
type NormalizationError struct {
	Kind   error
	Detail string
}

func (e *NormalizationError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *NormalizationError) Unwrap() error {
	return e.Kind
}

var mediaTypePattern = regexp.MustCompile(`data:([^;]+);`)

// Image is a normalized image.
type Image struct {
	Payload   string
	MediaType string
	data      []byte
}

// Bytes returns the decoded image bytes.
func (i Image) Bytes() []byte {
	return i.data
}

// Extension returns the media subtype, e.g. "png" for image/png.
func (i Image) Extension() string {
	if _, sub, ok := strings.Cut(i.MediaType, "/"); ok && sub != "" {
		return sub
	}
	return "jpeg"
}

// IsImage reports whether the media type is an image/* type.
func (i Image) IsImage() bool {
	return strings.HasPrefix(i.MediaType, "image/")
}

// Normalize resolves a submission into its payload and media type.
func Normalize(sub Submission) (Image, error) {
	var payload, mediaType string

	switch sub.Shape {
	case ShapeObjectField:
		payload, mediaType = decodeObjectField(sub.Fields)
	case ShapeDataURL:
		payload, mediaType = decodeDataURL(sub.Text)
	case ShapeBareString:
		payload, mediaType = decodeBareString(sub.Text)
	case ShapeNestedKey:
		payload, mediaType = decodeNestedKey(sub.Fields)
	}

	if len(payload) < MinPayloadLen {
		return Image{}, &NormalizationError{Kind: ErrMissingPayload, Detail: sub.describe()}
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return Image{}, &NormalizationError{Kind: ErrInvalidEncoding}
	}

	if mediaType == "" {
		mediaType = DefaultMediaType
	}

	return Image{Payload: payload, MediaType: mediaType, data: data}, nil
}

func decodeObjectField(fields map[string]any) (string, string) {
	value, _ := fields["base64"].(string)
	payload, mediaType := splitSelfDescribing(value)
	if mediaType == "" {
		mediaType, _ = fields["type"].(string)
	}
	return payload, mediaType
}

func decodeDataURL(text string) (string, string) {
	if !strings.HasPrefix(text, dataURLScheme) {
		return "", ""
	}
	// A data URL without a comma carries no payload.
	if !strings.Contains(text, ",") {
		return "", ""
	}
	return splitSelfDescribing(text)
}

func decodeBareString(text string) (string, string) {
	if len(text) <= bareStringMinLen {
		return "", ""
	}
	return text, ""
}

func decodeNestedKey(fields map[string]any) (string, string) {
	for _, key := range NestedKeys {
		value, ok := fields[key].(string)
		if !ok || value == "" {
			continue
		}
		return splitSelfDescribing(value)
	}
	return "", ""
}

// splitSelfDescribing splits "<scheme>:<mediaType>;<encoding>,<payload>" into
// payload and media type. Values without a comma are returned verbatim.
func splitSelfDescribing(value string) (string, string) {
	prefix, payload, found := strings.Cut(value, ",")
	if !found {
		return value, ""
	}
	var mediaType string
	if m := mediaTypePattern.FindStringSubmatch(prefix); m != nil {
		mediaType = m[1]
	}
	return payload, mediaType
}

// decodeBase64 accepts standard base64 with or without padding and ignores
// embedded whitespace.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
