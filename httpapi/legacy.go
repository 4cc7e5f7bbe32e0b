package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/tools"
)

// handleLegacyCreateWallet is a thin alias for the pre-multi-wallet
// `/api/wallet` POST endpoint (spec.md §9 Open Question: "treat it as a
// thin alias unless the migration story requires otherwise"). It proxies
// to createWallet against the (possibly just-created) sole wallet.
func (s *Server) handleLegacyCreateWallet(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, brokererr.Wrap(brokererr.KindValidation, err, "cannot read request body"))
		return
	}
	out, err := tools.Operations["createWallet"](s.catalog, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleLegacyGetWallet proxies to getWallet.
func (s *Server) handleLegacyGetWallet(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	out, err := tools.Operations["getWallet"](s.catalog, json.RawMessage(nil))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
