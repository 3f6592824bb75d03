package handlers

import (
	"errors"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// ErrPhoneNumberRequired is reported when a can-send request has no phone number.
var ErrPhoneNumberRequired = errors.New("businessPhoneNumber is required")

// CanSendRequest is the request body for a can-send check.
type CanSendRequest struct {
	Body struct {
		BusinessPhoneNumber string `doc:"Recipient phone number" example:"+15551234567" json:"businessPhoneNumber,omitempty"`
	}
}

// Resolve answers 400 for a null body or a blank number instead of a schema error.
func (r *CanSendRequest) Resolve(_ huma.Context) []error {
	if strings.TrimSpace(r.Body.BusinessPhoneNumber) == "" {
		return []error{huma.Error400BadRequest(ErrPhoneNumberRequired.Error())}
	}

	return nil
}

// CanSendResponse reports whether the message may be sent.
type CanSendResponse struct {
	Body struct {
		CanSend bool `doc:"Whether the message may be sent now" json:"canSend"`
	}
}
