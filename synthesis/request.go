package synthesis

import (
	"encoding/json"
	"fmt"

	"tryon_backend/imagedata"

	"github.com/sashabaranov/go-openai"
)

// Attachment is one labeled image sent with a request. The label is sent as
// a text part immediately before the image so the model can tell the images
// apart ("person", "garment: denim jacket", ...).
type Attachment struct {
	Label   string
	Payload imagedata.Payload
}

// Request is one composition call: an instruction plus ordered attachments.
type Request struct {
	Instruction string
	Attachments []Attachment

	// Temperature overrides the client default when > 0.
	Temperature float32
}

// Validate checks that the request can be sent.
func (r Request) Validate() error {
	if r.Instruction == "" {
		return fmt.Errorf("synthesis: instruction is required")
	}
	for i, a := range r.Attachments {
		if a.Payload.IsZero() {
			return fmt.Errorf("synthesis: attachment %d (%s) is empty", i, a.Label)
		}
	}
	return nil
}

// buildChatRequest converts a Request into the chat-completions body.
//
// The body is the go-openai request with an extra top-level "modalities"
// field, which image-capable models require and go-openai does not model.
// temperature is always written, since go-openai omits a zero value.
func buildChatRequest(model string, temperature float32, modalities []string, r Request) ([]byte, error) {
	parts := make([]openai.ChatMessagePart, 0, 1+2*len(r.Attachments))
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: r.Instruction,
	})
	for _, a := range r.Attachments {
		if a.Label != "" {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: a.Label + ":",
			})
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    a.Payload.DataURL(),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	if r.Temperature > 0 {
		temperature = r.Temperature
	}

	chat := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
	}

	body, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("extend request: %w", err)
	}
	if fields["temperature"], err = json.Marshal(temperature); err != nil {
		return nil, fmt.Errorf("extend request: %w", err)
	}
	if len(modalities) > 0 {
		if fields["modalities"], err = json.Marshal(modalities); err != nil {
			return nil, fmt.Errorf("extend request: %w", err)
		}
	}
	return json.Marshal(fields)
}
