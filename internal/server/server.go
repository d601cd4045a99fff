package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"stock-forecaster/internal/artifacts"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/predict"
	"stock-forecaster/internal/types"
)

const defaultDays = 60

// Server answers read-only artifact lookups and live predictions. It keeps
// no state between requests; the date is recomputed for every request.
type Server struct {
	store      *artifacts.Store
	predictors map[types.Variant]interfaces.Predictor
	symbols    map[string]string
	cutover    artifacts.Cutover
	now        func() time.Time
}

type Option func(*Server)

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(st *artifacts.Store, predictors []interfaces.Predictor, symbols map[string]string, cutover artifacts.Cutover, opts ...Option) *Server {
	s := &Server{
		store:      st,
		predictors: make(map[types.Variant]interfaces.Predictor, len(predictors)),
		symbols:    symbols,
		cutover:    cutover,
		now:        time.Now,
	}
	for _, p := range predictors {
		s.predictors[p.Variant()] = p
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/sentiment_summary/{symbol}", s.handleSummary)
	r.Get("/sentiment_chart/{symbol}", s.handleChart)
	r.Get("/metrics/{variant}/{symbol}", s.handleMetrics)
	r.Get("/metrics/{variant}/chart/{plot}/{symbol}", s.handleMetricsChart)
	r.Get("/predictions/{variant}/{symbol}", s.handleStoredPrediction)
	r.Get("/predict/{variant}", s.handlePredict)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Info(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) today() time.Time {
	return artifacts.EffectiveDate(s.now(), s.cutover)
}

func (s *Server) symbol(r *http.Request) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	if sym == "" {
		sym = strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	}
	if sym == "" {
		return "", fmt.Errorf("%w: symbol is required", types.ErrValidation)
	}
	if _, ok := s.symbols[sym]; !ok {
		return "", fmt.Errorf("%w: unknown symbol %s", types.ErrValidation, sym)
	}
	return sym, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writePNG(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// lookupFailed maps a store error to a response. missing is the 404 message.
func lookupFailed(w http.ResponseWriter, r *http.Request, err error, missing string) {
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, missing)
		return
	}
	logger.ErrorWithErr(r.Context(), "Artifact lookup failed", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Stock Prediction API is running."})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sym, err := s.symbol(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var rows []types.SentimentSummary
	err = s.store.ReadRecords(artifacts.Key{Kind: artifacts.KindSummary, Symbol: sym, Date: s.today()}, &rows)
	if err == nil && len(rows) == 0 {
		err = types.ErrNotFound
	}
	if err != nil {
		lookupFailed(w, r, err, "Summary not found")
		return
	}
	writeJSON(w, http.StatusOK, rows[0])
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sym, err := s.symbol(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.store.ReadBlob(artifacts.Key{Kind: artifacts.KindChart, Symbol: sym, Date: s.today()})
	if err != nil {
		lookupFailed(w, r, err, "Chart not found")
		return
	}
	writePNG(w, b)
}

// variant parses the {variant} segment. Unknown variants are a missing route.
func variant(w http.ResponseWriter, r *http.Request) (types.Variant, bool) {
	v, err := types.ParseVariant(chi.URLParam(r, "variant"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown model variant")
		return "", false
	}
	return v, true
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	v, ok := variant(w, r)
	if !ok {
		return
	}
	sym, err := s.symbol(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.store.ReadTable(artifacts.Key{Kind: artifacts.KindMetrics, Symbol: sym, Variant: v})
	if err == nil && len(t.Rows) == 0 {
		err = types.ErrNotFound
	}
	if err != nil {
		lookupFailed(w, r, err, "Metrics not found")
		return
	}
	writeJSON(w, http.StatusOK, numericRow(t.Maps()[0]))
}

// numericRow emits numeric cells as JSON numbers.
func numericRow(row map[string]string) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Server) handleMetricsChart(w http.ResponseWriter, r *http.Request) {
	v, ok := variant(w, r)
	if !ok {
		return
	}
	var kind artifacts.Kind
	switch chi.URLParam(r, "plot") {
	case "tsp":
		kind = artifacts.KindTestPlot
	case "tl":
		kind = artifacts.KindLossPlot
	default:
		writeError(w, http.StatusNotFound, "Chart not found")
		return
	}
	sym, err := s.symbol(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.store.ReadBlob(artifacts.Key{Kind: kind, Symbol: sym, Variant: v})
	if err != nil {
		lookupFailed(w, r, err, "Chart not found")
		return
	}
	writePNG(w, b)
}

type predictionResponse struct {
	Date           string  `json:"date"`
	Stock          string  `json:"stock"`
	PredictedPrice float64 `json:"predicted_price_for_tommorow"`
}

type storedPredictionResponse struct {
	Date           string   `json:"date"`
	Stock          string   `json:"stock"`
	Variant        string   `json:"variant"`
	PredictedPrice *float64 `json:"predicted_price"`
	Error          string   `json:"error,omitempty"`
}

func (s *Server) handleStoredPrediction(w http.ResponseWriter, r *http.Request) {
	v, ok := variant(w, r)
	if !ok {
		return
	}
	sym, err := s.symbol(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var rows []types.PredictionRow
	err = s.store.ReadRecords(artifacts.Key{Kind: artifacts.KindPrediction, Symbol: sym, Date: s.today(), Variant: v}, &rows)
	if err == nil && len(rows) == 0 {
		err = types.ErrNotFound
	}
	if err != nil {
		lookupFailed(w, r, err, "Prediction not found")
		return
	}
	row := rows[0]
	resp := storedPredictionResponse{Date: row.Date, Stock: row.Symbol, Variant: string(v), Error: row.Error}
	if p, ok := row.Price(); ok {
		rounded := predict.Round2(p)
		resp.PredictedPrice = &rounded
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	v, ok := variant(w, r)
	if !ok {
		return
	}
	p, ok := s.predictors[v]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown model variant")
		return
	}
	sym, err := s.symbol(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	days := defaultDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be a positive integer, got %q", raw))
			return
		}
		days = n
	}

	date := s.today()
	price, err := p.Predict(r.Context(), sym, days, date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, predictionResponse{
		Date:           date.Format(types.DateLayout),
		Stock:          sym,
		PredictedPrice: predict.Round2(price),
	})
}
