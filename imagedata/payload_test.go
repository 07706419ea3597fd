package imagedata

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"
)

// samplePNG returns a valid 2x2 PNG.
func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error: %v", err)
	}
	return buf.Bytes()
}

func sampleGIF(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("gif.Encode() error: %v", err)
	}
	return buf.Bytes()
}

func TestNew_RejectsEmptyAndUnknown(t *testing.T) {
	if _, err := New(nil, PNG, ""); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("New(nil) error = %v, want ErrEmptyPayload", err)
	}
	if _, err := New([]byte{1}, Format("bmp"), ""); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("New(bmp) error = %v, want ErrUnknownFormat", err)
	}
}

func TestDataURL_RoundTrip(t *testing.T) {
	data := samplePNG(t)
	p, err := New(data, PNG, "https://example/jacket.png")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	url := p.DataURL()
	if !IsDataURL(url) {
		t.Fatalf("IsDataURL(%q) = false", url[:30])
	}

	got, err := FromDataURL(url, JPEG)
	if err != nil {
		t.Fatalf("FromDataURL() error: %v", err)
	}
	if got.Format != PNG {
		t.Errorf("Format = %q, want png", got.Format)
	}
	if !bytes.Equal(got.Data, data) {
		t.Error("decoded bytes differ from original")
	}
}

func TestParseDataURL(t *testing.T) {
	body := base64.StdEncoding.EncodeToString([]byte("abc"))

	tests := []struct {
		name       string
		ref        string
		wantFormat Format
		wantErr    error
	}{
		{"png", "data:image/png;base64," + body, PNG, nil},
		{"jpg alias", "data:image/jpg;base64," + body, JPEG, nil},
		{"extra params", "data:image/webp;charset=binary;base64," + body, WEBP, nil},
		{"octet stream", "data:application/octet-stream;base64," + body, "", nil},
		{"not data url", "https://example/a.png", "", ErrNotDataURL},
		{"not base64 url", "data:image/png," + body, "", ErrNotDataURL},
		{"empty body", "data:image/png;base64,", "", ErrEmptyPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, format, err := ParseDataURL(tt.ref)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if format != tt.wantFormat {
				t.Errorf("format = %q, want %q", format, tt.wantFormat)
			}
		})
	}
}

func TestParseDataURL_UnpaddedBase64(t *testing.T) {
	body := base64.RawStdEncoding.EncodeToString([]byte("ab"))
	data, _, err := ParseDataURL("data:image/png;base64," + body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "ab" {
		t.Errorf("data = %q, want %q", data, "ab")
	}
}

func TestRetag_KeepsBytes(t *testing.T) {
	p := Payload{Data: []byte{1, 2, 3}, Format: PNG}
	r := p.Retag(WEBP)
	if r.Format != WEBP {
		t.Errorf("Format = %q, want webp", r.Format)
	}
	if !bytes.Equal(r.Data, p.Data) {
		t.Error("Retag changed the bytes")
	}
	if p.Format != PNG {
		t.Error("Retag mutated the receiver")
	}
}

func TestPayload_JSON(t *testing.T) {
	p := Payload{Data: sampleGIF(t), Format: GIF, SourceRef: "https://example/x.gif"}

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var got Payload
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.Format != GIF || got.SourceRef != p.SourceRef || !bytes.Equal(got.Data, p.Data) {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestPayload_UnmarshalRejectsCorrupt(t *testing.T) {
	inputs := []string{
		`{"data_url": ""}`,
		`{"data_url": "https://example/a.png"}`,
		`{"data_url": "data:text/plain;base64,aGVsbG8="}`,
		`"just a string"`,
	}
	for _, in := range inputs {
		var p Payload
		if err := json.Unmarshal([]byte(in), &p); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", in)
		}
	}
}
