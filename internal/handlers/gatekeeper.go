package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/gatekeeper/internal/audit"
	"github.com/serroba/gatekeeper/internal/messaging"
	"github.com/serroba/gatekeeper/internal/ratelimit"
	"go.uber.org/zap"
)

// Admitter decides whether a message may be sent to a recipient.
type Admitter interface {
	CheckAndAdmit(ctx context.Context, recipientID string) (bool, error)
}

// IDGenerator generates unique decision ids.
type IDGenerator func() string

// GatekeeperHandler answers can-send checks.
type GatekeeperHandler struct {
	admitter        Admitter
	newDecisionID   IDGenerator
	publishDecision messaging.Publish[audit.AdmissionDecidedEvent]
	logger          *zap.Logger
}

// NewGatekeeperHandler creates a new gatekeeper handler.
func NewGatekeeperHandler(
	admitter Admitter,
	newDecisionID IDGenerator,
	publishDecision messaging.Publish[audit.AdmissionDecidedEvent],
	logger *zap.Logger,
) *GatekeeperHandler {
	return &GatekeeperHandler{
		admitter:        admitter,
		newDecisionID:   newDecisionID,
		publishDecision: publishDecision,
		logger:          logger,
	}
}

type requestMetaKey struct{}

// RequestMeta holds HTTP request metadata for audit events.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// ContextWithRequestMeta adds request metadata to context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts request metadata from context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return v
	}

	return RequestMeta{}
}

func (h *GatekeeperHandler) CanSend(ctx context.Context, req *CanSendRequest) (*CanSendResponse, error) {
	recipient := strings.TrimSpace(req.Body.BusinessPhoneNumber)
	if recipient == "" {
		return nil, huma.Error400BadRequest(ErrPhoneNumberRequired.Error())
	}

	allowed, err := h.admitter.CheckAndAdmit(ctx, recipient)
	if err != nil {
		return nil, h.admissionError(recipient, err)
	}

	meta := RequestMetaFromContext(ctx)
	event := &audit.AdmissionDecidedEvent{
		DecisionID: h.newDecisionID(),
		Recipient:  recipient,
		Allowed:    allowed,
		DecidedAt:  time.Now().UTC(),
		ClientIP:   meta.ClientIP,
		UserAgent:  meta.UserAgent,
	}

	if err := h.publishDecision(ctx, event); err != nil {
		h.logger.Error("failed to publish decision event",
			zap.String("decisionId", event.DecisionID),
			zap.Error(err),
		)
	}

	resp := &CanSendResponse{}
	resp.Body.CanSend = allowed

	return resp, nil
}

func (h *GatekeeperHandler) admissionError(recipient string, err error) error {
	switch {
	case errors.Is(err, ratelimit.ErrReservedRecipient), errors.Is(err, ratelimit.ErrEmptyRecipient):
		return huma.Error400BadRequest("businessPhoneNumber is not a valid recipient")
	case errors.Is(err, ratelimit.ErrStorageUnavailable), errors.Is(err, ratelimit.ErrLockTimeout):
		return huma.Error503ServiceUnavailable("rate limit state unavailable")
	default:
		h.logger.Error("admission check failed",
			zap.String("recipient", recipient),
			zap.Error(err),
		)

		return huma.Error500InternalServerError("failed to check rate limit")
	}
}
