package stdioapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
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

func newTestCatalog(t *testing.T) *tools.Catalog {
	dir, err := os.MkdirTemp("", "clawlet-stdioapi-test")
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

	return tools.New(manager, br, rulesEngine, l, st)
}

func readLines(t *testing.T, r *bytes.Buffer, n int) []response {
	scanner := bufio.NewScanner(r)
	var out []response
	for i := 0; i < n && scanner.Scan(); i++ {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("cannot decode response line %q: %v", scanner.Text(), err)
		}
		out = append(out, resp)
	}
	return out
}

func TestRun_CreateWalletThenListWallets(t *testing.T) {
	catalog := newTestCatalog(t)

	createInput, _ := json.Marshal(map[string]string{"adapter": "local-key"})
	createReq, _ := json.Marshal(request{ID: "1", Op: "createWallet", Input: createInput})
	listReq, _ := json.Marshal(request{ID: "2", Op: "listWallets"})

	in := bytes.NewBufferString(string(createReq) + "\n" + string(listReq) + "\n")
	var out bytes.Buffer

	s := New(catalog, in, &out)
	assert.NoError(t, s.Run())

	responses := readLines(t, &out, 2)
	assert.Len(t, responses, 2)
	assert.Equal(t, "1", responses[0].ID)
	assert.Empty(t, responses[0].Error)
	assert.Equal(t, "2", responses[1].ID)
	assert.Empty(t, responses[1].Error)
}

func TestRun_UnknownOperationReturnsErrorResponse(t *testing.T) {
	catalog := newTestCatalog(t)

	req, _ := json.Marshal(request{ID: "7", Op: "doesNotExist"})
	in := bytes.NewBufferString(string(req) + "\n")
	var out bytes.Buffer

	s := New(catalog, in, &out)
	assert.NoError(t, s.Run())

	responses := readLines(t, &out, 1)
	assert.Len(t, responses, 1)
	assert.Equal(t, "7", responses[0].ID)
	assert.NotEmpty(t, responses[0].Error)
}

func TestRun_MalformedLineReturnsDecodeError(t *testing.T) {
	catalog := newTestCatalog(t)

	in := bytes.NewBufferString("{not json}\n")
	var out bytes.Buffer

	s := New(catalog, in, &out)
	assert.NoError(t, s.Run())

	responses := readLines(t, &out, 1)
	assert.Len(t, responses, 1)
	assert.Contains(t, responses[0].Error, "cannot decode request")
}

func TestRun_BlankLinesAreSkipped(t *testing.T) {
	catalog := newTestCatalog(t)

	req, _ := json.Marshal(request{ID: "9", Op: "listWallets"})
	in := bytes.NewBufferString("\n\n" + string(req) + "\n")
	var out bytes.Buffer

	s := New(catalog, in, &out)
	assert.NoError(t, s.Run())

	responses := readLines(t, &out, 1)
	assert.Len(t, responses, 1)
	assert.Equal(t, "9", responses[0].ID)
}
