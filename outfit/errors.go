package outfit

import (
	"errors"
	"fmt"
)

// ErrNoItems is wrapped in a *CompositionError when a request has no items.
var ErrNoItems = errors.New("no apparel items to compose")

// Step names a stage of the pipeline. Steps appear in errors and in
// progress events.
type Step string

const (
	StepValidate  Step = "validate"
	StepBasePhoto Step = "base_photo"
	StepExtract   Step = "extract"
	StepCompose   Step = "compose"
	StepDone      Step = "done"
	StepFailed    Step = "failed"
)

// ExtractionError reports that no clean product image could be produced.
// Err is the underlying fetch, service or no-image error.
type ExtractionError struct {
	Item Item
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %q: %v", e.Item.DisplayName(), e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// CompositionError reports a failed outfit request. Index is the 0-based
// position of the failing item, or -1 when the failure is not tied to one
// item (base photo, validation, single-call composition).
type CompositionError struct {
	Index int
	Item  Item
	Step  Step
	Err   error
}

func (e *CompositionError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("outfit composition failed at item %d (%s) during %s: %v",
			e.Index+1, e.Item.DisplayName(), e.Step, e.Err)
	}
	return fmt.Sprintf("outfit composition failed during %s: %v", e.Step, e.Err)
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}
