package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clawlet/broker/broker"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/ledger"
	"github.com/clawlet/broker/rules"
	"github.com/clawlet/broker/store"
	"github.com/clawlet/broker/tools"
	"github.com/clawlet/broker/wallet"
)

type stubBalanceReader struct{}

func (stubBalanceReader) BalanceOf(ctx context.Context, network chain.Network, address string) (string, error) {
	return "0.0", nil
}

func newTestServer(t *testing.T) *Server {
	dir, err := os.MkdirTemp("", "clawlet-httpapi-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	manager, err := wallet.NewManager(st, stubBalanceReader{})
	if err != nil {
		t.Fatalf("cannot build wallet manager: %v", err)
	}
	l := ledger.New(st, nil)
	rulesEngine := rules.New(st, l)
	br := broker.New(st, manager, l, rulesEngine, nil)
	t.Cleanup(br.Close)

	catalog := tools.New(manager, br, rulesEngine, l, st)
	return New(catalog)
}

func TestHandleOp_UnknownOperationReturns400(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/tools/doesNotExist", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleOp_CreateWalletAndListWallets(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"adapter": "local-key", "label": "Primary"})
	req := httptest.NewRequest(http.MethodPost, "/api/tools/createWallet", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/tools/listWallets", bytes.NewReader(nil))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Wallets []map[string]interface{} `json:"wallets"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Wallets, 1)
}

func TestHandleOp_DemoModeBlocksWrites(t *testing.T) {
	s := newTestServer(t)
	s.catalog.DemoMode = true

	body, _ := json.Marshal(map[string]string{"adapter": "local-key"})
	req := httptest.NewRequest(http.MethodPost, "/api/tools/createWallet", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLegacyWalletAlias_CreateThenGet(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"adapter": "local-key"})
	req := httptest.NewRequest(http.MethodPost, "/api/wallet", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
