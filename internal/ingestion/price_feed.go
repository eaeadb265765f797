// Package ingestion subscribes to the NATS JetStream price stream and
// keeps the oracle cache current. The feed is the only writer to the
// cache; the engine only ever reads from it.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"StableVault/internal/observability"
	"StableVault/internal/oracle"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// StreamName holds every price subject; relayers publish to
	// vault.prices.<feed-id>.
	StreamName    = "VAULT_PRICES"
	StreamSubject = "vault.prices.>"
	consumerName  = "vault-prices"
)

// PriceFeed consumes price updates from JetStream and applies them to the
// oracle cache. Malformed messages are ACKed and counted rather than
// redelivered: a message that failed to parse once will fail forever.
type PriceFeed struct {
	js       jetstream.JetStream
	cache    *oracle.Cache
	feeds    FeedResolver
	log      zerolog.Logger
	metrics  *observability.Metrics
	consumer jetstream.ConsumeContext
}

func NewPriceFeed(js jetstream.JetStream, cache *oracle.Cache, feeds FeedResolver, log zerolog.Logger, metrics *observability.Metrics) *PriceFeed {
	return &PriceFeed{
		js:      js,
		cache:   cache,
		feeds:   feeds,
		log:     log,
		metrics: metrics,
	}
}

// Start creates the durable consumer and begins applying updates.
// The consumer uses explicit ACK, max_deliver=5, ack_wait=30s.
func (f *PriceFeed) Start(ctx context.Context) error {
	consumer, err := f.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: StreamSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		f.handle(msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}
	f.consumer = cc

	f.log.Info().
		Str("stream", StreamName).
		Str("subject", StreamSubject).
		Msg("price feed subscribed")
	return nil
}

func (f *PriceFeed) handle(msg jetstream.Msg) {
	upd, err := ParsePriceUpdate(msg.Data(), f.feeds)
	if err != nil {
		f.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed price update")
		if f.metrics != nil {
			f.metrics.PriceParseFailures.Inc()
		}
		msg.Ack()
		return
	}

	f.cache.Put(upd.FeedID, upd.Price, upd.Decimals, upd.Timestamp)
	if f.metrics != nil {
		f.metrics.PriceUpdates.WithLabelValues(upd.FeedID).Inc()
	}
	f.log.Debug().
		Str("feed", upd.FeedID).
		Str("price", upd.Price.String()).
		Uint8("decimals", upd.Decimals).
		Msg("price applied")
	msg.Ack()
}

// Stop drains the consumer.
func (f *PriceFeed) Stop() {
	if f.consumer != nil {
		f.consumer.Stop()
	}
	f.log.Info().Msg("price feed stopped")
}

// EnsureStream creates the price stream if it does not exist.
// FileStorage, retention=Limits, max_age=72h.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{StreamSubject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
