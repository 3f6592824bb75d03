package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/jaevor/go-nanoid"
	"github.com/serroba/gatekeeper/internal/audit"
	"github.com/serroba/gatekeeper/internal/handlers"
	"github.com/serroba/gatekeeper/internal/messaging"
	"github.com/serroba/gatekeeper/internal/ratelimit"
	"github.com/serroba/gatekeeper/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAdmitter struct {
	allowed   bool
	err       error
	recipient string
}

func (m *mockAdmitter) CheckAndAdmit(_ context.Context, recipientID string) (bool, error) {
	m.recipient = recipientID

	return m.allowed, m.err
}

// recordingPublish returns a publish function that keeps every event.
func recordingPublish(events *[]*audit.AdmissionDecidedEvent) messaging.Publish[audit.AdmissionDecidedEvent] {
	return func(_ context.Context, event *audit.AdmissionDecidedEvent) error {
		*events = append(*events, event)

		return nil
	}
}

func errorPublish(err error) messaging.Publish[audit.AdmissionDecidedEvent] {
	return func(context.Context, *audit.AdmissionDecidedEvent) error { return err }
}

func newTestHandler(t *testing.T, admitter handlers.Admitter, publish messaging.Publish[audit.AdmissionDecidedEvent]) *handlers.GatekeeperHandler {
	t.Helper()

	gen, err := nanoid.Standard(21)
	require.NoError(t, err)

	return handlers.NewGatekeeperHandler(admitter, gen, publish, zap.NewNop())
}

func canSendRequest(number string) *handlers.CanSendRequest {
	req := &handlers.CanSendRequest{}
	req.Body.BusinessPhoneNumber = number

	return req
}

func statusOf(t *testing.T, err error) int {
	t.Helper()

	var se huma.StatusError
	require.ErrorAs(t, err, &se)

	return se.GetStatus()
}

func TestCanSend(t *testing.T) {
	t.Run("returns true when admitted", func(t *testing.T) {
		admitter := &mockAdmitter{allowed: true}
		handler := newTestHandler(t, admitter, messaging.NopPublish[audit.AdmissionDecidedEvent]())

		resp, err := handler.CanSend(context.Background(), canSendRequest("+15551234567"))

		require.NoError(t, err)
		assert.True(t, resp.Body.CanSend)
		assert.Equal(t, "+15551234567", admitter.recipient)
	})

	t.Run("returns false when denied", func(t *testing.T) {
		handler := newTestHandler(t, &mockAdmitter{allowed: false}, messaging.NopPublish[audit.AdmissionDecidedEvent]())

		resp, err := handler.CanSend(context.Background(), canSendRequest("+15551234567"))

		require.NoError(t, err)
		assert.False(t, resp.Body.CanSend)
	})

	t.Run("trims the phone number", func(t *testing.T) {
		admitter := &mockAdmitter{allowed: true}
		handler := newTestHandler(t, admitter, messaging.NopPublish[audit.AdmissionDecidedEvent]())

		_, err := handler.CanSend(context.Background(), canSendRequest("  +15551234567 "))

		require.NoError(t, err)
		assert.Equal(t, "+15551234567", admitter.recipient)
	})

	t.Run("rejects missing phone number without checking", func(t *testing.T) {
		for _, number := range []string{"", "   "} {
			admitter := &mockAdmitter{allowed: true}
			handler := newTestHandler(t, admitter, messaging.NopPublish[audit.AdmissionDecidedEvent]())

			resp, err := handler.CanSend(context.Background(), canSendRequest(number))

			assert.Nil(t, resp)
			assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
			assert.Contains(t, err.Error(), "businessPhoneNumber is required")
			assert.Empty(t, admitter.recipient, "admitter must not be called")
		}
	})

	t.Run("maps errors to status codes", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
			want int
		}{
			{
				name: "storage unavailable",
				err:  fmt.Errorf("%w: redis get rl:x: connection refused", ratelimit.ErrStorageUnavailable),
				want: http.StatusServiceUnavailable,
			},
			{
				name: "malformed counter",
				err:  &ratelimit.MalformedValueError{Key: ratelimit.GlobalKey, Value: "x"},
				want: http.StatusServiceUnavailable,
			},
			{
				name: "lock timeout",
				err:  fmt.Errorf("%w: %w", ratelimit.ErrLockTimeout, context.DeadlineExceeded),
				want: http.StatusServiceUnavailable,
			},
			{
				name: "reserved recipient",
				err:  ratelimit.ErrReservedRecipient,
				want: http.StatusBadRequest,
			},
			{
				name: "unexpected",
				err:  errors.New("boom"),
				want: http.StatusInternalServerError,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var events []*audit.AdmissionDecidedEvent

				handler := newTestHandler(t, &mockAdmitter{err: tt.err}, recordingPublish(&events))

				resp, err := handler.CanSend(context.Background(), canSendRequest("+15551234567"))

				assert.Nil(t, resp)
				assert.Equal(t, tt.want, statusOf(t, err))
				assert.Empty(t, events, "failed checks publish no decision")
			})
		}
	})
}

func TestCanSend_PublishesDecision(t *testing.T) {
	t.Run("publishes with request metadata", func(t *testing.T) {
		var events []*audit.AdmissionDecidedEvent

		handler := newTestHandler(t, &mockAdmitter{allowed: false}, recordingPublish(&events))
		ctx := handlers.ContextWithRequestMeta(context.Background(), handlers.RequestMeta{
			ClientIP:  "10.0.0.7",
			UserAgent: "sms-sender/2.1",
		})

		_, err := handler.CanSend(ctx, canSendRequest("+15551234567"))

		require.NoError(t, err)
		require.Len(t, events, 1)

		event := events[0]
		assert.Len(t, event.DecisionID, 21)
		assert.Equal(t, "+15551234567", event.Recipient)
		assert.False(t, event.Allowed)
		assert.Equal(t, "10.0.0.7", event.ClientIP)
		assert.Equal(t, "sms-sender/2.1", event.UserAgent)
		assert.WithinDuration(t, time.Now(), event.DecidedAt, time.Second)
	})

	t.Run("publish failure does not change the answer", func(t *testing.T) {
		handler := newTestHandler(t, &mockAdmitter{allowed: true}, errorPublish(errors.New("redis down")))

		resp, err := handler.CanSend(context.Background(), canSendRequest("+15551234567"))

		require.NoError(t, err)
		assert.True(t, resp.Body.CanSend)
	})
}

func TestRequestMetaFromContext(t *testing.T) {
	assert.Equal(t, handlers.RequestMeta{}, handlers.RequestMetaFromContext(context.Background()))
}

func TestRegisterRoutes(t *testing.T) {
	memStore := store.NewMemoryCounterStore()
	t.Cleanup(func() { _ = memStore.Close() })

	controller, err := ratelimit.NewController(memStore, ratelimit.Policy{
		MaxPerRecipient: 2,
		MaxGlobal:       50,
		Window:          time.Minute,
	})
	require.NoError(t, err)

	_, api := humatest.New(t)
	handlers.RegisterRoutes(api, newTestHandler(t, controller, messaging.NopPublish[audit.AdmissionDecidedEvent]()))

	body := map[string]any{"businessPhoneNumber": "+15551234567"}

	for range 2 {
		resp := api.Post("/gatekeeper/can-send", body)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Body.String(), `"canSend":true`)
	}

	resp := api.Post("/gatekeeper/can-send", body)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"canSend":false`)

	resp = api.Post("/gatekeeper/can-send", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "businessPhoneNumber is required")
}

func TestRegisterRoutes_RejectsMissingNumber(t *testing.T) {
	_, api := humatest.New(t)
	admitter := &mockAdmitter{allowed: true}
	handlers.RegisterRoutes(api, newTestHandler(t, admitter, messaging.NopPublish[audit.AdmissionDecidedEvent]()))

	for _, body := range []string{"null", "{}", `{"businessPhoneNumber":"   "}`} {
		resp := api.Post("/gatekeeper/can-send", "Content-Type: application/json", strings.NewReader(body))

		assert.Equal(t, http.StatusBadRequest, resp.Code, "body %s", body)
		assert.Contains(t, resp.Body.String(), "businessPhoneNumber is required", "body %s", body)
	}

	assert.Empty(t, admitter.recipient, "admitter must not be called")
}
