package ticket

import (
	"strings"

	"github.com/smefinder/smefinder/pkg/errors"
)

// Description length bounds for matchable tickets
const (
	MinDescriptionLength = 10
	MaxDescriptionLength = 50000
)

// Validator decides whether a ticket is eligible for SME matching
type Validator struct {
	markerTag string
}

// NewValidator creates a validator requiring the given marker tag. An
// empty tag disables the tag requirement.
func NewValidator(markerTag string) *Validator {
	return &Validator{markerTag: markerTag}
}

// Validate checks the assembled context against the eligibility rules.
// Every violation maps to a validation error so callers can answer the
// webhook with a deterministic 4xx instead of invoking the agent.
func (v *Validator) Validate(tc *Context) error {
	if tc == nil {
		return errors.NewValidationError("Ticket context is required")
	}
	if strings.TrimSpace(tc.TicketID) == "" {
		return errors.NewValidationError("Ticket ID is required")
	}
	if strings.TrimSpace(tc.Subject) == "" {
		return errors.NewValidationError("Ticket subject is required").
			WithDetail("ticket_id", tc.TicketID)
	}

	if err := ValidateDescription(tc.Description); err != nil {
		return err
	}

	if v.markerTag != "" && !tc.HasTag(v.markerTag) {
		return errors.NewValidationError("Ticket is not marked for SME matching").
			WithDetail("required_tag", v.markerTag)
	}
	return nil
}

// ValidateDescription checks the free-text description bounds. It is used
// both for webhook tickets and for direct description-only match requests.
func ValidateDescription(description string) error {
	trimmed := strings.TrimSpace(description)
	if len(trimmed) < MinDescriptionLength {
		return errors.NewValidationError("Description is too short").
			WithDetail("min_length", "10")
	}
	if len(trimmed) > MaxDescriptionLength {
		return errors.NewValidationError("Description is too long").
			WithDetail("max_length", "50000")
	}
	return nil
}
