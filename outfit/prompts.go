package outfit

import (
	"fmt"
	"strings"
)

// Attachment labels. The model sees them as text immediately before each image.
const (
	labelProduct = "product photo"
	labelPerson  = "person"
)

func extractionInstruction(item Item) string {
	return fmt.Sprintf("Isolate the %s from this product photo. "+
		"Return only the item on a transparent background, as a single canonical front view, "+
		"with no model, mannequin, props or text. Keep its exact color, pattern and material.",
		item.DisplayName())
}

func compositionInstruction(item Item) string {
	return fmt.Sprintf("Dress the person in the %s shown in the garment image. "+
		"Change only what this one item covers. Keep the person's identity, face, pose, body shape, "+
		"background, lighting and every other garment exactly as they are. "+
		"Reproduce the item's fabric, color, pattern and fit faithfully. Return one photorealistic image.",
		item.DisplayName())
}

func singleCallInstruction(items []Item) string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.DisplayName()
	}
	return fmt.Sprintf("Dress the person in all of the following items, in this order: %s. "+
		"Keep the person's identity, face, pose, body shape, background and lighting exactly as they are. "+
		"Reproduce each item's fabric, color, pattern and fit faithfully. Return one photorealistic image.",
		strings.Join(names, ", "))
}

func garmentLabel(item Item) string {
	return "garment: " + item.DisplayName()
}
