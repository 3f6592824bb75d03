package container

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jaevor/go-nanoid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do"
	"github.com/serroba/gatekeeper/internal/audit"
	"github.com/serroba/gatekeeper/internal/handlers"
	"github.com/serroba/gatekeeper/internal/health"
	"github.com/serroba/gatekeeper/internal/messaging"
	"github.com/serroba/gatekeeper/internal/middleware"
	"github.com/serroba/gatekeeper/internal/ratelimit"
	"go.uber.org/zap"
)

const decisionIDLength = 21

// HTTPPackage provides the router and the API with every route registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)

		controller, err := do.Invoke[*ratelimit.Controller](i)
		if err != nil {
			return nil, err
		}

		publish, err := do.Invoke[messaging.Publish[audit.AdmissionDecidedEvent]](i)
		if err != nil {
			return nil, err
		}

		checker, err := do.Invoke[health.Checker](i)
		if err != nil {
			return nil, err
		}

		decisionID, err := nanoid.Standard(decisionIDLength)
		if err != nil {
			return nil, err
		}

		api := humachi.New(router, huma.DefaultConfig("Gatekeeper", "1.0.0"))
		api.UseMiddleware(middleware.RequestMeta(api))

		handlers.RegisterRoutes(api, handlers.NewGatekeeperHandler(controller, decisionID, publish, logger))
		health.RegisterRoutes(api, health.NewHandler(opts.StoreBackend, checker))

		reg := do.MustInvoke[*prometheus.Registry](i)
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

		return api, nil
	})
}
