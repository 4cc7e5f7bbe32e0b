// Package audit publishes best-effort settlement events to Kafka
// (SPEC_FULL.md §4.6 expansion). A nil *Bus (or one built with no brokers
// configured) disables publishing entirely; nothing in the payment path
// depends on it succeeding.
package audit

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/Shopify/sarama"

	"github.com/clawlet/broker/log"
)

var logger = log.NewModuleLogger(log.Audit)

const topic = "clawlet.settlements"

// Event is the JSON payload published for every settled/failed ledger transition.
type Event struct {
	WalletID string `json:"walletId"`
	TxID     string `json:"txId"`
	Status   string `json:"status"`
	Amount   string `json:"amount"`
	Service  string `json:"service"`
}

// Bus wraps an optional sarama.SyncProducer.
type Bus struct {
	producer sarama.SyncProducer
}

// NewFromEnv builds a Bus from CLAWLET_KAFKA_BROKERS (comma-separated), or
// returns (nil, nil) meaning "auditing disabled".
func NewFromEnv() (*Bus, error) {
	raw := os.Getenv("CLAWLET_KAFKA_BROKERS")
	if raw == "" {
		return nil, nil
	}
	brokers := strings.Split(raw, ",")

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Bus{producer: producer}, nil
}

// Publish emits ev to the settlements topic, best-effort. Errors are
// logged, never returned to the caller's payment path.
func (b *Bus) Publish(ev Event) {
	if b == nil || b.producer == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Warnw("audit event marshal failed", "err", err)
		return
	}
	msg := &sarama.ProducerMessage{Topic: topic, Key: sarama.StringEncoder(ev.WalletID), Value: sarama.ByteEncoder(payload)}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		logger.Warnw("audit event publish failed", "err", err)
	}
}

// Close releases the underlying producer, if any.
func (b *Bus) Close() error {
	if b == nil || b.producer == nil {
		return nil
	}
	return b.producer.Close()
}
