// Package server exposes batch watermarking over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	watermark "github.com/gcslaoli/provenance-watermark-go"
	"github.com/gcslaoli/provenance-watermark-go/internal/batch"
)

const (
	// maxFieldBytes caps a single non-file form value.
	maxFieldBytes = 64 << 10

	// formOverhead allows for form fields and multipart framing on top of
	// the image payload.
	formOverhead = 1 << 20

	shutdownTimeout = 10 * time.Second

	bannerMessage = "AI-Protected Image Watermarking API - Enhanced protection against AI models"
)

// Server is the HTTP front end of a batch.Processor.
type Server struct {
	processor *batch.Processor
	defaults  watermark.Settings
	limiter   *rate.Limiter
	metrics   *Metrics
	registry  *prometheus.Registry
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithDefaults sets the values used for omitted form fields.
func WithDefaults(s watermark.Settings) Option {
	return func(srv *Server) { srv.defaults = s }
}

// WithRateLimit limits watermark requests to rps per second with the given
// burst. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(srv *Server) {
		if rps <= 0 {
			srv.limiter = nil
			return
		}
		srv.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// New builds a server around p with its own metrics registry.
func New(p *batch.Processor, opts ...Option) (*Server, error) {
	s := &Server{
		processor: p,
		defaults:  watermark.DefaultSettings(),
		metrics:   NewMetrics("aiprotect"),
		registry:  prometheus.NewRegistry(),
		logger:    slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.metrics.Register(s.registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(allowCORS)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": bannerMessage})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.With(s.rateLimit).Post("/watermark", s.handleWatermark)
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleWatermark(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := s.logger.With("request_id", w.Header().Get(requestIDHeader))

	limits := s.processor.Limits()
	r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxImages+1)*limits.MaxFileBytes+formOverhead)

	req, err := s.readForm(r, limits)
	if err != nil {
		var reqErr *batch.RequestError
		if errors.As(err, &reqErr) {
			s.fail(w, logger, http.StatusBadRequest, reqErr.Kind.String(), reqErr.Reason)
			return
		}
		s.fail(w, logger, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}

	res, err := s.processor.Process(r.Context(), req)
	if err != nil {
		var reqErr *batch.RequestError
		if errors.As(err, &reqErr) {
			s.fail(w, logger, http.StatusBadRequest, reqErr.Kind.String(), reqErr.Reason)
			return
		}
		logger.Error("batch failed", "err", err)
		s.fail(w, logger, http.StatusInternalServerError, "internal", "Processing failed.")
		return
	}
	s.metrics.observeResult(res, req.Type)

	body, err := batch.Package(res)
	if err != nil {
		logger.Error("package result", "batch", res.ID, "err", err)
		s.fail(w, logger, http.StatusInternalServerError, "internal", "Processing failed.")
		return
	}

	w.Header().Set("Content-Type", body.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+body.Filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(body.Data)))
	w.Header().Set("X-Content-Digest", "blake3="+body.Digest)
	w.Header().Set("X-Batch-ID", res.ID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body.Data); err != nil {
		logger.Warn("write response", "err", err)
	}

	s.metrics.requests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	s.metrics.duration.Observe(time.Since(start).Seconds())
}

// readForm streams the multipart body into a batch request, filling
// omitted fields from the configured defaults. Uploads are counted as they
// arrive so an oversized batch is rejected before the rest is read.
func (s *Server) readForm(r *http.Request, limits batch.Limits) (batch.Request, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return batch.Request{}, fmt.Errorf("Invalid form data: %w", err)
	}

	req := batch.Request{
		Type:    string(s.defaults.Type),
		Opacity: s.defaults.Opacity,
		Consent: string(s.defaults.Consent),
	}
	var oversized string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch.Request{}, bodyError(err, oversized)
		}

		name := part.FormName()
		if name == "files" {
			if len(req.Files) == limits.MaxImages {
				part.Close()
				return batch.Request{}, batch.TooManyImages(limits.MaxImages)
			}
			data, err := io.ReadAll(io.LimitReader(part, limits.MaxFileBytes+1))
			part.Close()
			if err != nil {
				return batch.Request{}, bodyError(err, oversized)
			}
			if int64(len(data)) > limits.MaxFileBytes && oversized == "" {
				oversized = part.FileName()
			}
			req.Files = append(req.Files, memoryFile{
				name:        part.FileName(),
				contentType: part.Header.Get("Content-Type"),
				data:        data,
			})
			continue
		}

		value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
		part.Close()
		if err != nil {
			return batch.Request{}, bodyError(err, oversized)
		}
		if len(value) > maxFieldBytes {
			return batch.Request{}, fmt.Errorf("Form field %s is too long.", name)
		}
		if err := setField(&req, name, string(value)); err != nil {
			return batch.Request{}, err
		}
	}
	return req, nil
}

func setField(req *batch.Request, name, value string) error {
	switch name {
	case "creator_name":
		req.Creator = value
	case "watermark_type":
		req.Type = string(watermark.ParseType(value))
	case "ai_consent":
		req.Consent = value
	case "additional_info":
		req.AdditionalInfo = value
	case "visible_opacity":
		if value == "" {
			return nil
		}
		opacity, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.New("Visible opacity must be a number.")
		}
		req.Opacity = opacity
	}
	return nil
}

// bodyError maps a read failure on the request body. Hitting the body
// ceiling is a client error and names the first oversized upload if any.
func bodyError(err error, oversized string) error {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return fmt.Errorf("Invalid form data: %w", err)
	}
	if oversized != "" {
		return batch.FileTooLarge(oversized)
	}
	return &batch.RequestError{Kind: batch.KindBodyTooLarge, Reason: "Request body too large.", Err: err}
}

func (s *Server) fail(w http.ResponseWriter, logger *slog.Logger, code int, reason, detail string) {
	logger.Info("request rejected", "code", code, "reason", reason, "detail", detail)
	if code < http.StatusInternalServerError {
		s.metrics.rejected.WithLabelValues(reason).Inc()
	}
	s.metrics.requests.WithLabelValues(strconv.Itoa(code)).Inc()
	writeJSON(w, code, map[string]string{"detail": detail})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.fail(w, s.logger, http.StatusTooManyRequests, "rate_limited", "Too many requests.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// memoryFile is an upload read from the request body, capped at the
// per-file limit plus one byte.
type memoryFile struct {
	name        string
	contentType string
	data        []byte
}

func (f memoryFile) Name() string        { return f.name }
func (f memoryFile) ContentType() string { return f.contentType }
func (f memoryFile) Size() int64         { return int64(len(f.data)) }

func (f memoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

const requestIDHeader = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Content-Digest, X-Batch-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
