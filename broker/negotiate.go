package broker

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
)

// negotiate issues the upstream request exactly once and, if it comes back
// 402, parses and selects a compatible payment option (spec.md §4.6.1).
func (b *Broker) negotiate(req *http.Request) (*payment, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindUpstream, err, "upstream request failed")
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindUpstream, err, "cannot read upstream response body")
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		return &payment{passthrough: &Passthrough{
			Status:  resp.StatusCode,
			Headers: resp.Header,
			BodyText: string(bodyBytes),
		}}, nil
	}

	doc, err := parsePaymentRequiredDoc(resp.Header, bodyBytes)
	if err != nil {
		return nil, err
	}

	network, err := b.store.GetNetworkCAIP2()
	if err != nil {
		return nil, err
	}

	accepted, ok := selectOption(doc.Accepts)
	if !ok {
		return nil, brokererr.New(brokererr.KindNoCompatOption, "no compatible payment option in 402 response")
	}

	if accepted.Network != network {
		return nil, brokererr.Newf(brokererr.KindNetworkMismatch,
			"network mismatch: selected %q, server requires %q", network, accepted.Network)
	}

	service := hostOf(req.URL)

	amountAtomic, ok := new(big.Int).SetString(accepted.Amount, 10)
	if !ok {
		return nil, brokererr.Newf(brokererr.KindUpstream, "malformed payment amount %q", accepted.Amount)
	}
	if err := b.rules.Enforce(amountAtomic, service); err != nil {
		return nil, err
	}

	return &payment{accepted: accepted, doc: doc, service: service}, nil
}

// parsePaymentRequiredDoc reads the document from the payment-required
// header (base64 JSON, case-insensitive) or falls back to the body.
func parsePaymentRequiredDoc(headers http.Header, body []byte) (paymentRequiredDoc, error) {
	if h := headerCI(headers, "payment-required"); h != "" {
		raw, err := base64.StdEncoding.DecodeString(h)
		if err != nil {
			return paymentRequiredDoc{}, brokererr.Wrap(brokererr.KindUpstream, err, "cannot base64-decode payment-required header")
		}
		var doc paymentRequiredDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return paymentRequiredDoc{}, brokererr.Wrap(brokererr.KindUpstream, err, "cannot parse payment-required header")
		}
		return doc, nil
	}

	var doc paymentRequiredDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return paymentRequiredDoc{}, brokererr.Wrap(brokererr.KindUpstream, err, "cannot parse 402 response body")
	}
	return doc, nil
}

// selectOption picks the first accepts entry with scheme=="exact", a
// recognized EVM network, and an asset matching that network's USDC
// contract, case-insensitively (spec.md §4.6.1 step 4).
func selectOption(accepts []PaymentRequirements) (PaymentRequirements, bool) {
	for _, opt := range accepts {
		if opt.Scheme != "exact" {
			continue
		}
		cfg, ok := chain.ByCAIP2(opt.Network)
		if !ok {
			continue
		}
		if cfg.IsUSDCAddress(opt.Asset) {
			return opt, true
		}
	}
	return PaymentRequirements{}, false
}

func hostOf(u *url.URL) string {
	return u.Hostname()
}

// headerCI does a case-insensitive lookup across the candidate header
// names, since servers in the wild disagree on casing (spec.md §9).
func headerCI(h http.Header, names ...string) string {
	for _, n := range names {
		if v := h.Get(n); v != "" {
			return v
		}
	}
	for key, vals := range h {
		for _, n := range names {
			if strings.EqualFold(key, n) && len(vals) > 0 {
				return vals[0]
			}
		}
	}
	return ""
}

func parseReceipt(headers http.Header) *string {
	raw := headerCI(headers, "payment-response", "x-payment-response")
	if raw == "" {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var rcpt receiptDoc
	if err := json.Unmarshal(decoded, &rcpt); err != nil {
		return nil
	}
	return rcpt.hash()
}
