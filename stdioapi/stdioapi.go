// Package stdioapi is the newline-delimited JSON stdio binding for the
// tool catalog (spec.md §4.7), used when the broker is driven as a
// subprocess tool rather than over HTTP. One request per line in,
// one response per line out, sharing tools.Operations with the HTTP
// binding so neither surface re-implements dispatch.
package stdioapi

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/log"
	"github.com/clawlet/broker/tools"
)

var logger = log.NewModuleLogger(log.StdioAPI)

// request is one line of stdin.
type request struct {
	ID    string          `json:"id"`
	Op    string          `json:"op"`
	Input json.RawMessage `json:"input"`
}

// response is one line of stdout: exactly one of Output/Error is set.
type response struct {
	ID     string      `json:"id"`
	Output interface{} `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Server reads requests from r and writes responses to w until r is
// exhausted.
type Server struct {
	catalog *tools.Catalog
	in      *bufio.Scanner
	out     *bufio.Writer
}

// New builds a Server over catalog, reading newline-delimited requests
// from r and writing newline-delimited responses to w.
func New(catalog *tools.Catalog, r io.Reader, w io.Writer) *Server {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &Server{catalog: catalog, in: scanner, out: bufio.NewWriter(w)}
}

// Run blocks, serving requests one line at a time, until stdin closes.
func (s *Server) Run() error {
	for s.in.Scan() {
		line := s.in.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleLine(line)
	}
	return s.in.Err()
}

func (s *Server) handleLine(line []byte) {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.write(response{Error: "cannot decode request: " + err.Error()})
		return
	}

	handler, ok := tools.Operations[req.Op]
	if !ok {
		s.write(response{ID: req.ID, Error: brokererr.Newf(brokererr.KindValidation, "unknown operation %q", req.Op).Error()})
		return
	}

	out, err := handler(s.catalog, req.Input)
	if err != nil {
		logger.Warnw("operation failed", "op", req.Op, "err", err)
		s.write(response{ID: req.ID, Error: err.Error()})
		return
	}
	s.write(response{ID: req.ID, Output: out})
}

func (s *Server) write(resp response) {
	defer s.out.Flush()
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Errorw("cannot encode response", "err", err)
		return
	}
	_, _ = s.out.Write(data)
	_, _ = s.out.Write([]byte("\n"))
}
