// Package httpapi is the JSON-over-HTTP binding for the tool catalog
// (spec.md §4.7), routed with github.com/julienschmidt/httprouter and
// wrapped in github.com/rs/cors, with Prometheus metrics exposed at
// /metrics via github.com/prometheus/client_golang/prometheus/promhttp.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/clawlet/broker/broker"
	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/log"
	"github.com/clawlet/broker/tools"
)

var logger = log.NewModuleLogger(log.HTTPAPI)

// Server wires the tool catalog to an HTTP router.
type Server struct {
	catalog *tools.Catalog
	router  *httprouter.Router
}

// New builds a Server over catalog.
func New(catalog *tools.Catalog) *Server {
	s := &Server{catalog: catalog, router: httprouter.New()}
	s.routes()
	return s
}

// Handler returns the CORS-wrapped http.Handler to listen with.
func (s *Server) Handler() http.Handler {
	origins := []string{"*"}
	if raw := os.Getenv("CLAWLET_CORS_ORIGINS"); raw != "" {
		origins = strings.Split(raw, ",")
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

func (s *Server) routes() {
	s.router.POST("/api/tools/:op", s.handleOp)
	s.router.POST("/api/wallet", s.handleLegacyCreateWallet)
	s.router.GET("/api/wallet", s.handleLegacyGetWallet)
	s.router.GET("/healthz", s.handleHealthz)
	metrics := promhttp.Handler()
	s.router.Handler(http.MethodGet, "/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.catalog.Broker != nil {
			activeSessions.Set(float64(s.catalog.Broker.SessionCount()))
		}
		metrics.ServeHTTP(w, r)
	}))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (s *Server) handleOp(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	op := ps.ByName("op")
	handler, ok := tools.Operations[op]
	if !ok {
		writeError(w, brokererr.Newf(brokererr.KindValidation, "unknown operation %q", op))
		return
	}

	var input json.RawMessage
	if r.ContentLength != 0 {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, brokererr.Wrap(brokererr.KindValidation, err, "cannot read request body"))
			return
		}
		input = body
	}

	out, err := handler(s.catalog, input)
	if err != nil {
		writeError(w, err)
		return
	}
	recordMetrics(op, out)
	writeJSON(w, http.StatusOK, out)
}

func recordMetrics(op string, out interface{}) {
	if op != "pay" && op != "payComplete" {
		return
	}
	result, ok := out.(*broker.Result)
	if !ok {
		return
	}
	status := "ok"
	if result.Status < 200 || result.Status >= 300 {
		status = "failed"
	}
	amount := 0.0
	if result.Payment != nil && status == "ok" {
		if v, err := strconv.ParseFloat(result.Payment.Amount, 64); err == nil {
			amount = v
		}
	}
	observePaymentOutcome(status, amount)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	kind := brokererr.KindOf(err)
	status := brokererr.HTTPStatus(kind)
	if status >= 500 {
		logger.Errorw("operation failed", "err", err, "kind", kind)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
