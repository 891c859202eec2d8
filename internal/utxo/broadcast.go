package utxo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"LiquidLend/internal/observability"
)

// OpContext describes one settlement transaction to assemble and submit.
// It carries everything the transaction builder needs; the accounting
// state it settles has already been committed when Submit runs.
type OpContext struct {
	Operation        string    `json:"operation"`
	UserAddress      string    `json:"user_address"`
	AssetID          string    `json:"asset_id"`
	Amount           int64     `json:"amount"`
	CollateralAmount int64     `json:"collateral_amount,omitempty"`
	PositionID       string    `json:"position_id,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// TransactionID derives a deterministic transaction id for the operation.
func (c OpContext) TransactionID() string {
	data := fmt.Sprintf("%s:%s:%s:%d:%d:%s:%s",
		c.UserAddress, c.Operation, c.AssetID, c.Amount,
		c.CollateralAmount, c.PositionID, c.Timestamp.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Broadcaster submits settlement transactions. ok=false means the
// broadcast failed; the caller's state change stands and the operation
// degrades to an unsettled success.
type Broadcaster interface {
	Submit(ctx context.Context, op OpContext) (txID string, ok bool)
}

// SimulatedBroadcaster fakes the settlement layer for development and
// tests: no network, transaction ids derived from the operation itself.
type SimulatedBroadcaster struct {
	log zerolog.Logger
}

func NewSimulatedBroadcaster() *SimulatedBroadcaster {
	return &SimulatedBroadcaster{
		log: observability.NewLogger("broadcast"),
	}
}

func (b *SimulatedBroadcaster) Submit(ctx context.Context, op OpContext) (string, bool) {
	txID := op.TransactionID()
	b.log.Info().
		Str("operation", op.Operation).
		Str("user", op.UserAddress).
		Str("asset", op.AssetID).
		Int64("amount", op.Amount).
		Str("tx_id", txID).
		Msg("simulated settlement broadcast")
	return txID, true
}

// SettlementStream is the JetStream stream carrying outbound settlement
// operations for the transaction assembly workers.
const SettlementStream = "LEND_SETTLEMENT"

// NATSBroadcaster publishes settlement operations to JetStream on
// lend.settlement.{operation}.{asset}. Downstream workers assemble and
// sign the actual covenant transactions.
type NATSBroadcaster struct {
	js      jetstream.JetStream
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewNATSBroadcaster(js jetstream.JetStream, metrics *observability.Metrics) *NATSBroadcaster {
	return &NATSBroadcaster{
		js:      js,
		log:     observability.NewLogger("broadcast"),
		metrics: metrics,
	}
}

func (b *NATSBroadcaster) Submit(ctx context.Context, op OpContext) (string, bool) {
	data, err := json.Marshal(op)
	if err != nil {
		b.log.Error().Err(err).Str("operation", op.Operation).Msg("marshal op context")
		return "", false
	}

	subject := fmt.Sprintf("lend.settlement.%s.%s", op.Operation, op.AssetID)
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		b.log.Warn().Err(err).Str("subject", subject).Msg("settlement publish failed")
		return "", false
	}

	txID := op.TransactionID()
	b.log.Info().
		Str("subject", subject).
		Str("tx_id", txID).
		Msg("settlement operation published")
	return txID, true
}

// EnsureSettlementStream creates the outbound settlement stream.
func EnsureSettlementStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      SettlementStream,
		Subjects:  []string{"lend.settlement.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", SettlementStream, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream
// context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := observability.NewLogger("nats")

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
