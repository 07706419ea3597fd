// Package imagedata provides the self-contained image payload shared by every
// stage of the outfit pipeline.
//
// payload.go contains the Payload value type and its data-URL encoding.
// A Payload always carries its bytes; it is never a bare remote reference.
package imagedata

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Payload errors
var (
	// ErrNotDataURL is returned when a string is not a base64 data URL.
	ErrNotDataURL = errors.New("imagedata: not a base64 data URL")

	// ErrEmptyPayload is returned when a payload carries no bytes.
	ErrEmptyPayload = errors.New("imagedata: empty payload")
)

// Payload is a self-contained image: raw bytes tagged with a format.
//
// The encoded form (see DataURL) embeds the format tag, so a Payload that
// round-trips through storage keeps its declared format.
type Payload struct {
	// Data is the raw encoded image (PNG, JPEG, ... bytes)
	Data []byte

	// Format is the declared format tag
	Format Format

	// SourceRef is the original reference the payload was produced from (optional)
	SourceRef string
}

// dataURLPattern matches the header of a base64 data URL and captures the MIME type.
var dataURLPattern = regexp.MustCompile(`^data:([^;,]*)(?:;[^,]*)?;base64,`)

// New creates a Payload, rejecting empty data and unknown formats.
func New(data []byte, format Format, sourceRef string) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, ErrEmptyPayload
	}
	if !format.Valid() {
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return Payload{Data: data, Format: format, SourceRef: sourceRef}, nil
}

// IsDataURL reports whether ref is a base64 data URL.
func IsDataURL(ref string) bool {
	return dataURLPattern.MatchString(strings.TrimSpace(ref))
}

// ParseDataURL decodes a base64 data URL.
//
// The returned format is taken from the embedded MIME type. When the MIME
// type is not a known image type the format is empty and the caller decides
// which tag to apply (see Retag).
func ParseDataURL(ref string) ([]byte, Format, error) {
	ref = strings.TrimSpace(ref)
	matches := dataURLPattern.FindStringSubmatch(ref)
	if matches == nil {
		return nil, "", ErrNotDataURL
	}

	encoded := ref[len(matches[0]):]
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Some producers strip padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, "", fmt.Errorf("imagedata: invalid base64 body: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyPayload
	}

	return data, FormatFromContentType(matches[1]), nil
}

// FromDataURL builds a Payload from a data URL. fallback is used when the
// embedded MIME type is not a recognised image type.
func FromDataURL(ref string, fallback Format) (Payload, error) {
	data, format, err := ParseDataURL(ref)
	if err != nil {
		return Payload{}, err
	}
	if format == "" {
		format = fallback
	}
	return New(data, format, "")
}

// DataURL returns the self-describing encoded form of the payload.
func (p Payload) DataURL() string {
	return "data:" + p.Format.MIMEType() + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Retag returns a copy carrying the given format. The bytes are not re-encoded.
func (p Payload) Retag(format Format) Payload {
	p.Format = format
	return p
}

// WithSourceRef returns a copy carrying the given source reference.
func (p Payload) WithSourceRef(ref string) Payload {
	p.SourceRef = ref
	return p
}

// IsZero reports whether the payload carries no bytes.
func (p Payload) IsZero() bool {
	return len(p.Data) == 0
}

// Size returns the length of the raw image bytes.
func (p Payload) Size() int {
	return len(p.Data)
}

// payloadJSON is the stored shape of a Payload.
type payloadJSON struct {
	DataURL   string `json:"data_url"`
	SourceRef string `json:"source_ref,omitempty"`
}

// MarshalJSON encodes the payload as a data URL plus its source reference.
func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(payloadJSON{
		DataURL:   p.DataURL(),
		SourceRef: p.SourceRef,
	})
}

// UnmarshalJSON decodes a payload written by MarshalJSON. The format is
// recovered from the data URL's embedded tag.
func (p *Payload) UnmarshalJSON(b []byte) error {
	var raw payloadJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, format, err := ParseDataURL(raw.DataURL)
	if err != nil {
		return err
	}
	if format == "" {
		return fmt.Errorf("%w in stored data URL", ErrUnknownFormat)
	}
	*p = Payload{Data: data, Format: format, SourceRef: raw.SourceRef}
	return nil
}
