package api

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a validation error with field information
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// JoinValidator validates join requests
type JoinValidator struct {
	errors ValidationErrors
}

// NewJoinValidator creates a new join request validator
func NewJoinValidator() *JoinValidator {
	return &JoinValidator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates a join request body
func (v *JoinValidator) Validate(req JoinRequest) ValidationErrors {
	v.errors = make(ValidationErrors, 0)

	v.validateMeetingURL(req.MeetingURL)
	v.validateBotName(req.BotName)

	return v.errors
}

func (v *JoinValidator) validateMeetingURL(meetingURL string) {
	if meetingURL == "" {
		v.errors = append(v.errors, ValidationError{
			Field:   "meeting_url",
			Message: "meeting URL is required",
		})
		return
	}

	u, err := url.Parse(meetingURL)
	if err != nil {
		v.errors = append(v.errors, ValidationError{
			Field:   "meeting_url",
			Message: "invalid URL format",
		})
		return
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		v.errors = append(v.errors, ValidationError{
			Field:   "meeting_url",
			Message: fmt.Sprintf("unsupported scheme '%s'. Meeting URLs must be http or https", u.Scheme),
		})
	}

	if u.Host == "" {
		v.errors = append(v.errors, ValidationError{
			Field:   "meeting_url",
			Message: "meeting URL must include a host",
		})
	}
}

func (v *JoinValidator) validateBotName(name string) {
	if name == "" {
		return // Bot name is optional; the configured default applies
	}

	if len(name) > 100 {
		v.errors = append(v.errors, ValidationError{
			Field:   "bot_name",
			Message: "bot name must be less than 100 characters",
		})
	}
}

// ValidateMeetingID validates a meeting identifier
func ValidateMeetingID(id string) error {
	if id == "" {
		return fmt.Errorf("meeting ID is required")
	}

	// ID should be alphanumeric with underscores
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, id)
	if !matched {
		return fmt.Errorf("meeting ID must contain only letters, numbers, underscores, and hyphens")
	}

	if len(id) > 100 {
		return fmt.Errorf("meeting ID must be less than 100 characters")
	}

	return nil
}
