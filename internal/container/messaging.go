package container

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/samber/do"
	"github.com/serroba/gatekeeper/internal/audit"
	auditstore "github.com/serroba/gatekeeper/internal/audit/store"
	"github.com/serroba/gatekeeper/internal/messaging"
	"github.com/serroba/gatekeeper/internal/store"
	"go.uber.org/zap"
)

// AuditConsumerGroup is the Redis stream consumer group the audit consumer reads with.
const AuditConsumerGroup = "audit"

// PublisherGroupPackage provides the stream publisher and the decision publish function.
// With Options.PublishDecisions off, decisions are dropped and Redis is never dialled
// for publishing.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		conn, err := do.Invoke[*RedisConnection](i)
		if err != nil {
			return nil, err
		}

		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client:     conn.Client,
				Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
			},
			messaging.NewZapLogger(logger),
		)
		if err != nil {
			return nil, err
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(i, func(i *do.Injector) (messaging.Publish[audit.AdmissionDecidedEvent], error) {
		opts := do.MustInvoke[*Options](i)
		if !opts.PublishDecisions {
			return messaging.NopPublish[audit.AdmissionDecidedEvent](), nil
		}

		group, err := do.Invoke[*messaging.PublisherGroup](i)
		if err != nil {
			return nil, err
		}

		return messaging.NewPublishFunc[audit.AdmissionDecidedEvent](group.Publisher(), audit.TopicDecision), nil
	})
}

// ConsumerGroupPackage provides the audit store and the consumer group feeding it.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (audit.Store, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if opts.DatabaseURL == "" {
			logger.Warn("no database configured, decisions are only logged")

			return auditstore.NewNoop(logger), nil
		}

		conn, err := do.Invoke[*PostgresConnection](i)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		auditStore := store.NewPostgresAuditStore(conn.Pool)
		if err := auditStore.EnsureSchema(ctx); err != nil {
			return nil, err
		}

		return auditStore, nil
	})

	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		conn, err := do.Invoke[*RedisConnection](i)
		if err != nil {
			return nil, err
		}

		logger := do.MustInvoke[*zap.Logger](i)

		subscriber, err := redisstream.NewSubscriber(
			redisstream.SubscriberConfig{
				Client:        conn.Client,
				Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
				ConsumerGroup: AuditConsumerGroup,
			},
			messaging.NewZapLogger(logger),
		)
		if err != nil {
			return nil, err
		}

		auditStore, err := do.Invoke[audit.Store](i)
		if err != nil {
			return nil, err
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer[audit.AdmissionDecidedEvent](
			subscriber,
			audit.TopicDecision,
			auditStore.SaveDecision,
			logger,
		))

		return group, nil
	})
}
