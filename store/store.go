package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/hashicorp/go-uuid"
	"github.com/otiai10/copy"
	"github.com/pkg/errors"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/log"
)

var logger = log.NewModuleLogger(log.Store)

// Store holds the in-memory document and guards every read/mutation with a
// single process-wide mutex, per spec.md §5. The lock is held across the
// in-memory mutation and the atomic file write; no other I/O runs under it.
type Store struct {
	mu       sync.Mutex
	doc      Document
	path     string
	dataDir  string
	s3Bucket string
}

// Open loads (and, if necessary, migrates) the document at <cwd>/.clawlet/state.json.
func Open() (*Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindPersistence, err, "cannot resolve working directory")
	}
	dataDir := filepath.Join(cwd, chain.DataDir)
	return OpenAt(dataDir)
}

// OpenAt loads (and, if necessary, migrates) the document at dataDir/state.json.
// Exposed separately from Open so tests can point at a temp directory.
func OpenAt(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, brokererr.Wrap(brokererr.KindPersistence, err, "cannot create data directory")
	}
	s := &Store{
		path:     filepath.Join(dataDir, chain.StateFileName),
		dataDir:  dataDir,
		s3Bucket: os.Getenv("CLAWLET_S3_BACKUP_BUCKET"),
	}

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.doc = Document{Wallets: []WalletEntry{}, ActiveWalletID: nil, Network: string(chain.Base), SchemaVersion: 2}
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindPersistence, err, "cannot read state file")
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, brokererr.Wrap(brokererr.KindPersistence, err, "state file is not valid JSON")
	}

	if isLegacy(generic) {
		doc, err := migrateLegacy(raw)
		if err != nil {
			return nil, err
		}
		if err := copy.Copy(s.path, s.path+".v1.bak"); err != nil {
			logger.Warnw("pre-migration backup copy failed", "err", err)
		}
		s.doc = doc
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, brokererr.Wrap(brokererr.KindPersistence, err, "cannot decode state document")
	}
	if doc.Wallets == nil {
		doc.Wallets = []WalletEntry{}
	}
	if doc.Network == "" {
		doc.Network = string(chain.Base)
	}
	s.doc = doc
	return s, nil
}

func migrateLegacy(raw []byte) (Document, error) {
	var legacy legacyDocument
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return Document{}, brokererr.Wrap(brokererr.KindPersistence, err, "cannot decode legacy state document")
	}

	idBytes, err := uuid.GenerateRandomBytes(8)
	if err != nil {
		return Document{}, brokererr.Wrap(brokererr.KindInternal, err, "cannot generate wallet id")
	}
	id := fmt.Sprintf("%x", idBytes)

	legacy.Rules.Normalize()
	if legacy.Rules.AllowedServices == nil {
		legacy.Rules.AllowedServices = []string{}
	}
	if legacy.Rules.BlockedServices == nil {
		legacy.Rules.BlockedServices = []string{}
	}
	if legacy.Transactions == nil {
		legacy.Transactions = []Transaction{}
	}

	adapter := legacy.AdapterConfig
	if adapter.CachedAddress == "" && legacy.Wallet.Address != "" {
		adapter.CachedAddress = legacy.Wallet.Address
	}

	entry := WalletEntry{
		ID:           id,
		Label:        "Wallet 1",
		CreatedAt:    nowISO(),
		Frozen:       false,
		Adapter:      adapter,
		Rules:        legacy.Rules,
		Transactions: legacy.Transactions,
	}

	active := id
	return Document{
		Wallets:        []WalletEntry{entry},
		ActiveWalletID: &active,
		Network:        string(chain.Base),
		SchemaVersion:  2,
	}, nil
}

// Get returns a copy of the current document.
func (s *Store) Get() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDocument(s.doc)
}

// Mutate runs fn against the live document under the store's mutex, then
// persists while still holding it. fn must not perform I/O: the state file
// write is the only I/O done under the mutex.
func (s *Store) Mutate(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := cloneDocument(s.doc)
	if err := fn(&working); err != nil {
		return err
	}
	if err := validateDocument(working); err != nil {
		return err
	}
	s.doc = working
	return s.persistLocked()
}

// Persist rewrites the state file from the current in-memory document.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	b, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return brokererr.Wrap(brokererr.KindInternal, err, "cannot encode state document")
	}
	if err := atomicWrite(s.path, b); err != nil {
		return brokererr.Wrap(brokererr.KindPersistence, err, "cannot write state file")
	}
	s.mirrorToS3(b)
	return nil
}

// atomicWrite writes data to path via a temp file + rename, so a crash
// mid-write leaves the previous valid document in place (I7).
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}

// mirrorToS3 uploads the just-written bytes to the configured bucket,
// best-effort (spec.md §4.1 expansion). Never blocks or fails the caller.
func (s *Store) mirrorToS3(data []byte) {
	if s.s3Bucket == "" {
		return
	}
	go func(bucket string, payload []byte) {
		sess, err := session.NewSession()
		if err != nil {
			logger.Warnw("s3 backup: session init failed", "err", err)
			return
		}
		key := fmt.Sprintf("state/%d.json", nowUnix())
		_, err = s3.New(sess).PutObject(&s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   bytesReader(payload),
		})
		if err != nil {
			logger.Warnw("s3 backup: upload failed", "err", err)
		}
	}(s.s3Bucket, append([]byte(nil), data...))
}

// GetActive returns the active wallet, if any.
func (s *Store) GetActive() (*WalletEntry, bool) {
	doc := s.Get()
	return findActive(&doc)
}

// RequireActive returns the active wallet or a no-active-wallet error.
func (s *Store) RequireActive() (*WalletEntry, error) {
	w, ok := s.GetActive()
	if !ok {
		return nil, brokererr.New(brokererr.KindNotInitialized, "no active wallet")
	}
	return w, nil
}

// GetNetworkCAIP2 maps the current network selection to its CAIP-2 id.
func (s *Store) GetNetworkCAIP2() (string, error) {
	doc := s.Get()
	return networkCAIP2(doc.Network)
}

// SetNetwork validates and persists a network selection.
func (s *Store) SetNetwork(network string) error {
	if !chain.IsValidNetwork(network) {
		return brokererr.Newf(brokererr.KindValidation, "unsupported network %q", network)
	}
	return s.Mutate(func(doc *Document) error {
		doc.Network = network
		return nil
	})
}

func findActive(doc *Document) (*WalletEntry, bool) {
	if doc.ActiveWalletID == nil {
		return nil, false
	}
	for i := range doc.Wallets {
		if doc.Wallets[i].ID == *doc.ActiveWalletID {
			w := doc.Wallets[i]
			return &w, true
		}
	}
	return nil, false
}

func validateDocument(doc Document) error {
	seen := make(map[string]bool, len(doc.Wallets))
	for _, w := range doc.Wallets {
		if seen[w.ID] {
			return brokererr.Newf(brokererr.KindInternal, "duplicate wallet id %q", w.ID)
		}
		seen[w.ID] = true
	}
	if doc.ActiveWalletID != nil && !seen[*doc.ActiveWalletID] {
		return brokererr.Newf(brokererr.KindInternal, "activeWalletId %q does not reference an existing wallet", *doc.ActiveWalletID)
	}
	return nil
}

func cloneDocument(doc Document) Document {
	out := Document{
		Network:       doc.Network,
		SchemaVersion: doc.SchemaVersion,
		Wallets:       make([]WalletEntry, len(doc.Wallets)),
	}
	for i, w := range doc.Wallets {
		out.Wallets[i] = cloneWallet(w)
	}
	if doc.ActiveWalletID != nil {
		id := *doc.ActiveWalletID
		out.ActiveWalletID = &id
	}
	return out
}

func cloneWallet(w WalletEntry) WalletEntry {
	out := w
	out.Transactions = append(make([]Transaction, 0, len(w.Transactions)), w.Transactions...)
	out.Rules.AllowedServices = append([]string{}, w.Rules.AllowedServices...)
	out.Rules.BlockedServices = append([]string{}, w.Rules.BlockedServices...)
	if w.AgentIdentity != nil {
		id := *w.AgentIdentity
		out.AgentIdentity = &id
	}
	return out
}
