package container

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do"
	"github.com/serroba/gatekeeper/internal/config"
	"github.com/serroba/gatekeeper/internal/health"
	"github.com/serroba/gatekeeper/internal/ratelimit"
	"github.com/serroba/gatekeeper/internal/store"
	"go.uber.org/zap"
)

// CounterStorePackage provides the counter store selected by Options.StoreBackend
// and the health checker for it.
func CounterStorePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (ratelimit.CounterStore, error) {
		opts := do.MustInvoke[*Options](i)

		switch opts.StoreBackend {
		case BackendMemory:
			return store.NewMemoryCounterStore(), nil
		case BackendRedis:
			conn, err := do.Invoke[*RedisConnection](i)
			if err != nil {
				return nil, err
			}

			return store.NewRedisCounterStore(conn.Client), nil
		default:
			return nil, fmt.Errorf("unknown store backend %q", opts.StoreBackend)
		}
	})

	do.Provide(i, func(i *do.Injector) (health.Checker, error) {
		counters, err := do.Invoke[ratelimit.CounterStore](i)
		if err != nil {
			return nil, err
		}

		if checker, ok := counters.(health.Checker); ok {
			return checker, nil
		}

		return health.AlwaysHealthy{}, nil
	})
}

// MetricsPackage provides the Prometheus registry and the admission collectors.
func MetricsPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*prometheus.Registry, error) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		return reg, nil
	})

	do.Provide(i, func(i *do.Injector) (*ratelimit.Metrics, error) {
		return ratelimit.NewMetrics(do.MustInvoke[*prometheus.Registry](i)), nil
	})
}

// RateLimitPackage provides the admission controller.
func RateLimitPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*ratelimit.Controller, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		policy, err := PolicyFromOptions(opts)
		if err != nil {
			return nil, err
		}

		counters, err := do.Invoke[ratelimit.CounterStore](i)
		if err != nil {
			return nil, err
		}

		controller, err := ratelimit.NewController(counters, policy,
			ratelimit.WithLogger(logger),
			ratelimit.WithMetrics(do.MustInvoke[*ratelimit.Metrics](i)),
			ratelimit.WithLockTimeout(millis(opts.LockTimeoutMS)),
			ratelimit.WithWriteTimeout(millis(opts.WriteTimeoutMS)),
			ratelimit.WithAtomicStore(opts.Atomic),
		)
		if err != nil {
			return nil, err
		}

		logger.Info("admission policy loaded",
			zap.String("backend", opts.StoreBackend),
			zap.Int64("max_per_recipient", policy.MaxPerRecipient),
			zap.Int64("max_global", policy.MaxGlobal),
			zap.Duration("window", policy.Window),
			zap.Bool("atomic", opts.Atomic),
		)

		return controller, nil
	})
}

// PolicyFromOptions builds the policy from the options, overlaid with the
// policy file when one is configured.
func PolicyFromOptions(opts *Options) (ratelimit.Policy, error) {
	policy := ratelimit.Policy{
		MaxPerRecipient: int64(opts.MaxPerRecipient),
		MaxGlobal:       int64(opts.MaxGlobal),
		Window:          millis(opts.WindowMS),
	}

	if opts.PolicyFile != "" {
		return config.LoadPolicyFile(opts.PolicyFile, policy)
	}

	if err := policy.Validate(); err != nil {
		return ratelimit.Policy{}, err
	}

	return policy, nil
}
