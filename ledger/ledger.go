// Package ledger appends, updates, and lists transaction records bound to
// the active wallet (spec.md §4.2).
package ledger

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/export"
	"github.com/clawlet/broker/log"
	"github.com/clawlet/broker/store"
)

var logger = log.NewModuleLogger(log.Ledger)

const maxListLimit = 200

// Ledger wraps a *store.Store to append/update/list transactions for the
// currently active wallet.
type Ledger struct {
	st     *store.Store
	mirror *export.Mirror
}

// New builds a Ledger over st. mirror may be nil (export disabled).
func New(st *store.Store, mirror *export.Mirror) *Ledger {
	return &Ledger{st: st, mirror: mirror}
}

// AddInput is the set of fields the caller supplies when opening a new
// transaction record (spec.md §4.2).
type AddInput struct {
	Payee   string
	Service string
	Amount  string
	Asset   string
	Network string
	TxHash  *string
	Status  store.TxStatus
	Reason  string
}

// Add allocates a fresh id and timestamp, appends to the active wallet's
// transaction list, persists, and returns the record.
func (l *Ledger) Add(in AddInput) (store.Transaction, error) {
	idBytes, err := uuid.GenerateRandomBytes(16)
	if err != nil {
		return store.Transaction{}, brokererr.Wrap(brokererr.KindInternal, err, "cannot generate transaction id")
	}

	record := store.Transaction{
		ID:        fmt.Sprintf("%x", idBytes),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payee:     in.Payee,
		Service:   in.Service,
		Amount:    in.Amount,
		Asset:     in.Asset,
		Network:   in.Network,
		TxHash:    in.TxHash,
		Status:    in.Status,
		Reason:    in.Reason,
	}

	err = l.st.Mutate(func(doc *store.Document) error {
		idx, err := store.RequireActiveIndex(doc)
		if err != nil {
			return err
		}
		doc.Wallets[idx].Transactions = append(doc.Wallets[idx].Transactions, record)
		return nil
	})
	if err != nil {
		return store.Transaction{}, err
	}

	l.mirrorAsync(record)
	return record, nil
}

// UpdatePatch carries the fields Update may change; nil fields are left as-is.
type UpdatePatch struct {
	Status *store.TxStatus
	TxHash *string
	Reason *string
}

// Update looks up id on the active wallet, applies the patch, persists, and
// returns the updated record.
func (l *Ledger) Update(id string, patch UpdatePatch) (store.Transaction, error) {
	var updated store.Transaction
	err := l.st.Mutate(func(doc *store.Document) error {
		idx, err := store.RequireActiveIndex(doc)
		if err != nil {
			return err
		}
		txs := doc.Wallets[idx].Transactions
		for i := range txs {
			if txs[i].ID == id {
				if patch.Status != nil {
					txs[i].Status = *patch.Status
				}
				if patch.TxHash != nil {
					txs[i].TxHash = patch.TxHash
				}
				if patch.Reason != nil {
					txs[i].Reason = *patch.Reason
				}
				updated = txs[i]
				return nil
			}
		}
		return brokererr.Newf(brokererr.KindValidation, "transaction %q not found", id)
	})
	if err != nil {
		return store.Transaction{}, err
	}

	l.mirrorAsync(updated)
	return updated, nil
}

// List returns the newest-first slice of the active wallet's transactions,
// capped at 200 (or limit, whichever is smaller).
func (l *Ledger) List(limit int) ([]store.Transaction, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	w, err := l.st.RequireActive()
	if err != nil {
		return nil, err
	}
	txs := make([]store.Transaction, 0, len(w.Transactions))
	for i := len(w.Transactions) - 1; i >= 0; i-- {
		txs = append(txs, w.Transactions[i])
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp > txs[j].Timestamp
	})
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// TodaySpent sums, in atomic USDC units, all settled transactions whose
// timestamp's UTC date prefix equals today's (spec.md §4.2).
func (l *Ledger) TodaySpent() (*big.Int, error) {
	w, err := l.st.RequireActive()
	if err != nil {
		return nil, err
	}
	return sumSettledToday(w.Transactions, time.Now().UTC()), nil
}

func sumSettledToday(txs []store.Transaction, now time.Time) *big.Int {
	today := now.Format("2006-01-02")
	total := big.NewInt(0)
	for _, tx := range txs {
		if tx.Status != store.TxSettled {
			continue
		}
		if !strings.HasPrefix(tx.Timestamp, today) {
			continue
		}
		atomic, ok := chain.ParseDecimalToAtomic(tx.Amount, chain.USDCDecimals)
		if !ok {
			continue
		}
		total.Add(total, atomic)
	}
	return total
}

func (l *Ledger) mirrorAsync(tx store.Transaction) {
	if l.mirror == nil {
		return
	}
	w, ok := l.st.GetActive()
	walletID := ""
	if ok {
		walletID = w.ID
	}
	go func() {
		if err := l.mirror.Upsert(walletID, tx); err != nil {
			logger.Warnw("ledger export mirror failed", "err", err)
		}
	}()
}
