package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/pingsantohq/atlasdecode/internal/metrics"
	"github.com/pingsantohq/atlasdecode/pkg/measurement"
)

const defaultMaxBodyBytes = 4 << 20

// Config controls HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
}

// Dependencies holds external collaborators required by the server.
type Dependencies struct {
	Logger  *log.Logger
	Metrics *metrics.Store
}

// Server wraps http.Server for convenience.
type Server struct {
	*http.Server
	cfg  Config
	deps Dependencies
}

// New constructs an HTTP server with decode endpoints.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewStore()
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/decode", decodeHandler(cfg, deps)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/decode/{type}", decodeHandler(cfg, deps)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/traceroute/route", routeHandler(cfg, deps)).Methods(http.MethodPost)
	r.Handle("/metrics", metrics.NewHTTPHandler(deps.Metrics)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	s := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return &Server{Server: s, cfg: cfg, deps: deps}
}

type decodeResponse struct {
	Type   measurement.MeasurementType `json:"type"`
	Result measurement.Result          `json:"result"`
}

type routeResponse struct {
	Route             [][]string `json:"route"`
	RouteWithTimeouts [][]string `json:"route_with_timeouts"`
}

type errorResponse struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error"`
}

func decodeHandler(cfg Config, deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r, cfg.MaxBodyBytes)
		if !ok {
			return
		}
		opts, ok := decodeOptions(w, r)
		if !ok {
			return
		}

		var (
			res measurement.Result
			err error
		)
		if name, ok := mux.Vars(r)["type"]; ok {
			kind, perr := measurement.ParseMeasurementType(name)
			if perr != nil {
				http.Error(w, "unknown measurement type", http.StatusNotFound)
				return
			}
			res, err = measurement.DecodeAs(kind, body, opts...)
		} else {
			res, err = measurement.Decode(body, opts...)
		}

		rec := deps.Metrics.DecodeRecorder()
		if err != nil {
			kind, _ := measurement.PeekType(body)
			writeDecodeError(w, deps, string(kind), err)
			return
		}
		rec.ObserveRecord(string(res.Kind()))
		rec.ObserveDecoded(string(res.Kind()))
		writeJSON(w, deps, http.StatusOK, decodeResponse{Type: res.Kind(), Result: res})
	}
}

func routeHandler(cfg Config, deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r, cfg.MaxBodyBytes)
		if !ok {
			return
		}
		opts, ok := decodeOptions(w, r)
		if !ok {
			return
		}
		res, err := measurement.DecodeTraceroute(body, opts...)
		if err != nil {
			writeDecodeError(w, deps, string(measurement.TypeTraceroute), err)
			return
		}
		rec := deps.Metrics.DecodeRecorder()
		rec.ObserveRecord(string(measurement.TypeTraceroute))
		rec.ObserveDecoded(string(measurement.TypeTraceroute))
		writeJSON(w, deps, http.StatusOK, routeResponse{
			Route:             slices.Collect(res.Route()),
			RouteWithTimeouts: slices.Collect(res.RouteWithTimeouts()),
		})
	}
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, "unable to read body", http.StatusBadRequest)
		}
		return nil, false
	}
	return body, true
}

func decodeOptions(w http.ResponseWriter, r *http.Request) ([]measurement.Option, bool) {
	raw := r.URL.Query().Get("strict")
	if raw == "" {
		return nil, true
	}
	strict, err := strconv.ParseBool(raw)
	if err != nil {
		http.Error(w, "invalid strict flag", http.StatusBadRequest)
		return nil, false
	}
	return []measurement.Option{measurement.WithStrict(strict)}, true
}

func writeDecodeError(w http.ResponseWriter, deps Dependencies, kind string, err error) {
	var de *measurement.DecodeError
	if !errors.As(err, &de) {
		deps.Logger.Printf("decode failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	root := de.Root()
	rec := deps.Metrics.DecodeRecorder()
	rec.ObserveRecord(kind)
	rec.ObserveFailure(kind, root.Kind.String())
	writeJSON(w, deps, http.StatusUnprocessableEntity, errorResponse{
		Kind:   root.Kind.String(),
		Path:   root.Path,
		Detail: root.Detail,
		Error:  de.Error(),
	})
}

func writeJSON(w http.ResponseWriter, deps Dependencies, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		deps.Logger.Printf("encode response failed: %v", err)
	}
}
