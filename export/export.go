// Package export mirrors ledger rows (on every add and update, whatever the
// status) into an external SQL database for reporting, per SPEC_FULL.md §4.2. It is a read-side
// convenience only: the JSON document remains the single source of truth,
// and every method here is best-effort (errors are returned to the caller
// to log, never to block the ledger operation that triggered the mirror).
package export

import (
	"os"

	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"

	"github.com/clawlet/broker/log"
	"github.com/clawlet/broker/store"
)

var logger = log.NewModuleLogger(log.Export)

// txRow is the mirrored row shape.
type txRow struct {
	ID        string `gorm:"primary_key"`
	WalletID  string
	Timestamp string
	Payee     string
	Service   string
	Amount    string
	Asset     string
	Network   string
	TxHash    string
	Status    string
	Reason    string
}

func (txRow) TableName() string { return "clawlet_tx" }

// Mirror holds an optional *gorm.DB connection. A nil *Mirror (or one built
// from an empty DSN) disables mirroring entirely.
type Mirror struct {
	db *gorm.DB
}

// NewFromEnv opens a mirror using CLAWLET_EXPORT_DSN if set, otherwise
// returns (nil, nil) meaning "mirroring disabled".
func NewFromEnv() (*Mirror, error) {
	dsn := os.Getenv("CLAWLET_EXPORT_DSN")
	if dsn == "" {
		return nil, nil
	}
	db, err := gorm.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&txRow{}).Error; err != nil {
		logger.Warnw("export mirror automigrate failed", "err", err)
	}
	return &Mirror{db: db}, nil
}

// Upsert writes or overwrites the mirrored row for tx.
func (m *Mirror) Upsert(walletID string, tx store.Transaction) error {
	if m == nil || m.db == nil {
		return nil
	}
	row := txRow{
		ID:        tx.ID,
		WalletID:  walletID,
		Timestamp: tx.Timestamp,
		Payee:     tx.Payee,
		Service:   tx.Service,
		Amount:    tx.Amount,
		Asset:     tx.Asset,
		Network:   tx.Network,
		Status:    string(tx.Status),
		Reason:    tx.Reason,
	}
	if tx.TxHash != nil {
		row.TxHash = *tx.TxHash
	}
	return m.db.Save(&row).Error
}

// Close releases the underlying connection, if any.
func (m *Mirror) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}
