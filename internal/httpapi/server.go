package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"genrelay/internal/relay"
	"genrelay/internal/upstream"
	"genrelay/pkg/types"
)

// RootMessage is the fixed body of GET /.
const RootMessage = "genrelay server is running."

const defaultMaxBodyBytes int64 = 1 << 20

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Complete(ctx context.Context, req types.GenerationRequest) (*upstream.Response, error)
	Stream(ctx context.Context, req types.GenerationRequest, w io.Writer, flush func()) (relay.Stats, error)
}

// CORSOptions configures the CORS middleware. Empty lists fall back to
// allowing everything.
type CORSOptions struct {
	Disabled       bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Options configures NewMux. The zero value is usable.
type Options struct {
	// MaxBodyBytes limits request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
	// BaseContext is canceled on shutdown to stop in-flight streams.
	BaseContext context.Context
	Logger      *zerolog.Logger
	// LogLevel is the per-request default; requests override it with ?log= or
	// X-Log-Level. Logger must be at debug level for debug output to appear.
	LogLevel LogLevel
	CORS     CORSOptions
}

type handler struct {
	svc      Service
	maxBody  int64
	base     context.Context
	log      zerolog.Logger
	logLevel LogLevel
}

func NewMux(svc Service, opts Options) http.Handler {
	h := &handler{
		svc:      svc,
		maxBody:  opts.MaxBodyBytes,
		base:     opts.BaseContext,
		log:      zerolog.Nop(),
		logLevel: opts.LogLevel,
	}
	if h.maxBody <= 0 {
		h.maxBody = defaultMaxBodyBytes
	}
	if h.base == nil {
		h.base = context.Background()
	}
	if opts.Logger != nil {
		h.log = opts.Logger.With().Str("component", "httpapi").Logger()
	}

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if !opts.CORS.Disabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   orAll(opts.CORS.AllowedOrigins, "*"),
			AllowedMethods:   orAll(opts.CORS.AllowedMethods, "GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"),
			AllowedHeaders:   orAll(opts.CORS.AllowedHeaders, "*"),
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	// Compression for JSON endpoints only; event streams are never buffered.
	r.Use(middleware.Compress(5, "application/json"))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(MetricsMiddleware)
		r.Get("/", h.root)
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		r.Post("/generate-text/", h.generate)
		r.Post("/generate-text", h.generate)
		// Prometheus metrics endpoint
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	})
	MountSwagger(r)
	return r
}

func orAll(v []string, def ...string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

// root godoc
// @Summary      Liveness message
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.MessageResponse
// @Router       / [get]
func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(types.MessageResponse{Message: RootMessage}); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// generate godoc
// @Summary      Generate text
// @Description  Forwards the prompt to the provider. With stream=false the provider reply is returned verbatim; with stream=true generated text is relayed as text/event-stream.
// @Tags         generation
// @Accept       json
// @Produce      json
// @Produce      text/event-stream
// @Param        request  body      types.GenerationRequest  true  "Generation request"
// @Success      200      {string}  string                   "provider reply or streamed text"
// @Failure      400      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      422      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Failure      504      {object}  types.ErrorResponse
// @Router       /generate-text/ [post]
func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	req, status, err := decodeGenerationRequest(r.Body)
	if err != nil {
		writeJSONError(w, status, err.Error())
		return
	}

	lvl := requestLogLevel(r, h.logLevel)
	rid := middleware.GetReqID(r.Context())
	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(h.base, r.Context())
	defer cancel()
	ctx = upstream.WithRequestID(ctx, rid)

	start := time.Now()
	if lvl >= LevelInfo {
		h.log.Info().Str("request_id", rid).Str("model", req.Model).Bool("stream", req.Stream).Msg("generate start")
	}
	if req.Stream {
		h.stream(ctx, w, r, req, lvl, rid, start)
		return
	}
	h.complete(ctx, w, r, req, lvl, rid, start)
}

func (h *handler) complete(ctx context.Context, w http.ResponseWriter, r *http.Request, req types.GenerationRequest, lvl LogLevel, rid string, start time.Time) {
	resp, err := h.svc.Complete(ctx, req)
	if err != nil {
		if h.gone(r) {
			h.log.Debug().Str("request_id", rid).Err(err).Msg("client disconnected")
			return
		}
		IncrementUpstreamError(upstreamErrorKind(err))
		status := writeServiceError(w, err)
		h.logEnd(lvl, rid, status, start, err)
		return
	}
	if resp.StatusCode >= 400 {
		IncrementUpstreamError("status")
	}
	writeUpstreamReply(w, resp.StatusCode, resp.ContentType, resp.Body)
	h.logEnd(lvl, rid, resp.StatusCode, start, nil)
}

func (h *handler) stream(ctx context.Context, w http.ResponseWriter, r *http.Request, req types.GenerationRequest, lvl LogLevel, rid string, start time.Time) {
	sw := &sseWriter{w: w}
	out := io.Writer(sw)
	if lvl >= LevelDebug {
		out = io.MultiWriter(sw, &deltaLogWriter{log: h.log, requestID: rid})
	}
	st, err := h.svc.Stream(ctx, req, out, sw.flush)
	switch {
	case err == nil:
		sw.start()
		observeStream("eof", st.Deltas, st.Skipped)
		h.logEnd(lvl, rid, http.StatusOK, start, nil)
	case h.gone(r):
		// Client disconnect or shutdown is a normal end of stream.
		observeStream("canceled", st.Deltas, st.Skipped)
		h.log.Debug().Str("request_id", rid).Int("deltas", st.Deltas).Msg("client disconnected")
	case !sw.started:
		IncrementUpstreamError(upstreamErrorKind(err))
		observeStream("rejected", st.Deltas, st.Skipped)
		status := writeServiceError(w, err)
		h.logEnd(lvl, rid, status, start, err)
	default:
		// Status line already sent; the stream just ends.
		IncrementUpstreamError(upstreamErrorKind(err))
		outcome := "error"
		if errors.Is(err, relay.ErrIdleTimeout) {
			outcome = "idle_timeout"
		}
		observeStream(outcome, st.Deltas, st.Skipped)
		h.log.Warn().Str("request_id", rid).Str("outcome", outcome).Int("deltas", st.Deltas).Err(err).Msg("stream aborted")
	}
}

// gone reports whether the client left or the server is shutting down.
func (h *handler) gone(r *http.Request) bool {
	return r.Context().Err() != nil || h.base.Err() != nil
}

func (h *handler) logEnd(lvl LogLevel, rid string, status int, start time.Time, err error) {
	switch {
	case err != nil && lvl >= LevelError:
		h.log.Error().Str("request_id", rid).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("generate end")
	case lvl >= LevelInfo:
		h.log.Info().Str("request_id", rid).Int("status", status).Dur("dur", time.Since(start)).Msg("generate end")
	}
}

// decodeGenerationRequest parses and validates the request body. The returned
// status is 400 for malformed or oversized bodies and 422 for schema errors.
func decodeGenerationRequest(body io.Reader) (types.GenerationRequest, int, error) {
	var req types.GenerationRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			if te.Field != "" {
				return req, http.StatusUnprocessableEntity, fmt.Errorf("invalid type for field %q", te.Field)
			}
			return req, http.StatusUnprocessableEntity, errors.New("request body must be a JSON object")
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return req, http.StatusBadRequest, errors.New("request body too large")
		}
		return req, http.StatusBadRequest, errors.New("invalid JSON body")
	}
	// Empty values are the provider's to reject.
	if missing := req.MissingFields(); len(missing) > 0 {
		return req, http.StatusUnprocessableEntity, fmt.Errorf("%s is required", missing[0])
	}
	return req, http.StatusOK, nil
}

// sseWriter sends event-stream headers lazily, so a provider rejection that
// arrives before any text can still be passed through with its own status.
type sseWriter struct {
	w       http.ResponseWriter
	started bool
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	hdr := s.w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseWriter) Write(p []byte) (int, error) {
	s.start()
	return s.w.Write(p)
}

func (s *sseWriter) flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
