package synthesis

import (
	"encoding/json"
	"regexp"
	"strings"
)

// chatResponse is the subset of the chat-completions response the client
// reads. go-openai's response type has no field for generated images, so
// the shape is declared here.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
			Images  []imagePart     `json:"images"`
		} `json:"message"`
	} `json:"choices"`
}

type imagePart struct {
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

// contentPart is one element of array-valued message content.
type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

// messageContent splits message content, which may be a plain string or a
// list of parts, into its text and any structured image_url references.
func messageContent(raw json.RawMessage) (string, []string) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", nil
	}

	var b strings.Builder
	var refs []string
	for _, p := range parts {
		if p.Text != "" {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(p.Text)
		}
		if p.ImageURL != nil && p.ImageURL.URL != "" {
			refs = append(refs, p.ImageURL.URL)
		}
	}
	return b.String(), refs
}

// candidate is an image reference found in a response and where it came from.
type candidate struct {
	ref    string
	source string
}

// findImageReference applies the parse chain: the structured images field
// first, then image_url content parts, then a scan of the free text.
// The second return value is the reply text, for error reporting.
func findImageReference(resp chatResponse) (candidate, string, bool) {
	if len(resp.Choices) == 0 {
		return candidate{}, "", false
	}
	msg := resp.Choices[0].Message
	text, partRefs := messageContent(msg.Content)

	for _, img := range msg.Images {
		if url := strings.TrimSpace(img.ImageURL.URL); url != "" {
			return candidate{ref: url, source: "images"}, text, true
		}
	}
	for _, ref := range partRefs {
		if ref = strings.TrimSpace(ref); ref != "" {
			return candidate{ref: ref, source: "content_part"}, text, true
		}
	}
	if ref, ok := ScanImageReference(text); ok {
		return candidate{ref: ref, source: "text"}, text, true
	}
	return candidate{}, text, false
}

// imageRefPattern matches an inline base64 image or an http(s) URL.
// Parentheses, brackets, quotes and angle brackets end a URL so markdown
// links and HTML attributes are handled.
var imageRefPattern = regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+|https?://[^\s"'<>()\[\]{}]+`)

// ScanImageReference returns the first data-image URL or http(s) URL found
// in free text, with trailing sentence punctuation removed.
//
// This is the last-resort parser for models that answer in prose. It cannot
// tell an image link from any other link: the first URL wins, even if the
// model was citing a page rather than returning an image.
//
// Example:
//
//	ScanImageReference("Here you go: ![result](https://cdn.example/out.png).")
//	// "https://cdn.example/out.png", true
func ScanImageReference(text string) (string, bool) {
	match := imageRefPattern.FindString(text)
	if match == "" {
		return "", false
	}
	if strings.HasPrefix(match, "http") {
		match = strings.TrimRight(match, ".,;:!?*_")
	}
	return match, match != ""
}
