// Package imagedata provides the self-contained image payload shared by every
// stage of the outfit pipeline.
//
// format.go contains pure functions for resolving and validating format tags.
package imagedata

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder registration
	_ "image/jpeg" // JPEG decoder registration
	_ "image/png"  // PNG decoder registration
	"net/url"
	"path"
	"strings"

	_ "golang.org/x/image/webp" // WebP decoder registration
)

// Format is the closed set of image format tags a payload may carry.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	WEBP Format = "webp"
	GIF  Format = "gif"
)

// DefaultFormat is the last-resort tag when nothing else identifies the format.
const DefaultFormat = JPEG

// Validation errors
var (
	ErrUnknownFormat = errors.New("imagedata: unknown image format")
	ErrNotImage      = errors.New("imagedata: payload is not a decodable image")
)

// extensionFormats maps URI path suffixes to format tags.
var extensionFormats = map[string]Format{
	".jpg":  JPEG,
	".jpeg": JPEG,
	".png":  PNG,
	".webp": WEBP,
	".gif":  GIF,
}

// Valid reports whether f is one of the known format tags.
func (f Format) Valid() bool {
	switch f {
	case JPEG, PNG, WEBP, GIF:
		return true
	default:
		return false
	}
}

// MIMEType returns the MIME type for the format. Unknown formats map to
// the default format's MIME type.
func (f Format) MIMEType() string {
	if !f.Valid() {
		return "image/" + string(DefaultFormat)
	}
	return "image/" + string(f)
}

// String implements fmt.Stringer.
func (f Format) String() string {
	return string(f)
}

// FormatFromContentType maps a Content-Type header value to a format tag.
// Returns "" when the value does not name a known image type.
//
// This is a pure function with no side effects.
//
// Example:
//
//	FormatFromContentType("image/png; charset=binary") // PNG
//	FormatFromContentType("image/jpg")                 // JPEG
//	FormatFromContentType("text/html")                 // ""
func FormatFromContentType(contentType string) Format {
	lower := strings.ToLower(contentType)
	if idx := strings.Index(lower, ";"); idx != -1 {
		lower = lower[:idx]
	}

	switch strings.TrimSpace(lower) {
	case "image/png":
		return PNG
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return JPEG
	case "image/webp":
		return WEBP
	case "image/gif":
		return GIF
	default:
		return ""
	}
}

// FormatFromPath derives a format tag from the path suffix of a URI.
// Anything not in the extension table resolves to DefaultFormat.
//
// This is a pure function with no side effects.
func FormatFromPath(ref string) Format {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}

	if format, ok := extensionFormats[strings.ToLower(path.Ext(p))]; ok {
		return format
	}
	return DefaultFormat
}

// ResolveFormat applies the fetcher's precedence: a declared image
// Content-Type first, then the URI suffix table.
func ResolveFormat(contentType, ref string) Format {
	if format := FormatFromContentType(contentType); format != "" {
		return format
	}
	return FormatFromPath(ref)
}

// DetectFormat sniffs the format from the image header bytes.
func DetectFormat(data []byte) (Format, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}

	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	format := Format(name)
	if !format.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	return format, nil
}

// Validate checks that the payload is non-empty, carries a known tag and
// decodes as an image. The declared tag is not required to match the sniffed
// format because the fetcher re-tags without re-encoding.
func Validate(p Payload) error {
	if p.IsZero() {
		return ErrEmptyPayload
	}
	if !p.Format.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, p.Format)
	}
	if _, err := DetectFormat(p.Data); err != nil {
		return err
	}
	return nil
}

// IsImageLike reports whether Validate accepts the payload.
func IsImageLike(p Payload) bool {
	return Validate(p) == nil
}
