package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// RegisterRoutes registers the gatekeeper routes.
func RegisterRoutes(api huma.API, gatekeeper *GatekeeperHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "can-send",
		Method:      http.MethodPost,
		Path:        "/gatekeeper/can-send",
		Summary:     "Check whether a message may be sent",
		Description: "Admits the message against the per-recipient and global budgets. " +
			"An admitted check counts toward both budgets; a denied check counts toward neither.",
		Tags: []string{"Gatekeeper"},
		Errors: []int{
			http.StatusBadRequest,
			http.StatusServiceUnavailable,
		},
	}, gatekeeper.CanSend)
}
