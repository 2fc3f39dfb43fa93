// Package api provides the HTTP REST API server for StockPulse.
//
// It exposes live sentiment and correlation analysis straight from the news
// and price providers, the stored history collected by the pipeline, and
// a trigger for an immediate collection run.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"

	"github.com/seenimoa/stockpulse/internal/analysis/correlation"
	"github.com/seenimoa/stockpulse/internal/analysis/sentiment"
	"github.com/seenimoa/stockpulse/internal/config"
	"github.com/seenimoa/stockpulse/internal/datasource"
	"github.com/seenimoa/stockpulse/internal/pipeline"
	"github.com/seenimoa/stockpulse/internal/store"
	"github.com/seenimoa/stockpulse/pkg/models"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

// Version is reported by the health endpoint.
var Version = "dev"

// LiveAnalyzer answers analysis requests from the providers.
type LiveAnalyzer interface {
	AnalyzeText(text string) pipeline.TextAnalysis
	AnalyzeSymbol(ctx context.Context, symbol string, count int) (models.SymbolSentiment, error)
	AnalyzeCorrelation(ctx context.Context, symbol string) (models.CorrelationReport, error)
	GetNews(ctx context.Context, symbol string, count, daysBack int) (pipeline.NewsResult, error)
	AnalyzeBatch(ctx context.Context, symbols []string, count int) (pipeline.BatchResult, error)
}

// Refresher runs a collection.
type Refresher interface {
	Refresh(ctx context.Context, opts pipeline.RefreshOptions) (*pipeline.RefreshResult, error)
}

// Repository is the read side of the store.
type Repository interface {
	Stocks(ctx context.Context) ([]models.Stock, error)
	Stock(ctx context.Context, symbol string) (models.Stock, error)
	ArticlesWithSentiment(ctx context.Context, symbol string, daysBack, limit int) ([]models.ScoredArticle, error)
	CorrelationData(ctx context.Context, symbol string, daysBack int) (models.CorrelationReport, error)
	BatchSentimentSummary(ctx context.Context, days int) (map[string]models.SymbolSentiment, error)
	UsageToday(ctx context.Context) (models.APIUsage, error)
}

// Deps are the services the server delegates to.
type Deps struct {
	Analyzer  LiveAnalyzer
	Refresher Refresher
	Repo      Repository
}

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	deps     Deps
	validate *validator.Validate
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, deps Deps) *Server {
	srv := &Server{
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(),
	}
	srv.validate.RegisterTagNameFunc(jsonFieldName)
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Run serves HTTP on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.collectTimeout() + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg.API.RequestTimeout > 0 {
		return s.cfg.API.RequestTimeout
	}
	return 60 * time.Second
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Collection runs under its own timeout.
	r.Post("/refresh-data", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout()))

		// Health check
		r.Get("/", s.handleHealth)
		r.Get("/health", s.handleHealth)

		// Live analysis
		r.Post("/analyze-sentiment", s.handleAnalyzeSentiment)
		r.Post("/analyze-text", s.handleAnalyzeText)
		r.Post("/analyze-correlation", s.handleAnalyzeCorrelation)
		r.Post("/get-news", s.handleGetNews)
		r.Post("/analyze-batch", s.handleAnalyzeBatch)

		// Stored data
		r.Route("/api", func(r chi.Router) {
			r.Get("/stocks", s.handleStocks)
			r.Get("/stocks/{symbol}", s.handleStock)
			r.Get("/sentiment/batch", s.handleSentimentBatch)
			r.Get("/sentiment/{symbol}", s.handleSentiment)
			r.Get("/correlation/{symbol}", s.handleCorrelation)
			r.Get("/news/{symbol}", s.handleNews)
			r.Get("/usage", s.handleUsage)

			// Configuration
			r.Get("/config", s.handleGetConfig)
			r.Get("/config/keys", s.handleGetConfigKeys)
		})
	})

	return r
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SentimentRequest is the body for POST /analyze-sentiment.
type SentimentRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	Count  int    `json:"count,omitempty" validate:"gte=0,lte=200"`
}

// TextRequest is the body for POST /analyze-text.
type TextRequest struct {
	Text string `json:"text" validate:"required"`
}

// CorrelationRequest is the body for POST /analyze-correlation.
type CorrelationRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

// NewsRequest is the body for POST /get-news.
type NewsRequest struct {
	Symbol   string `json:"symbol" validate:"required"`
	Count    int    `json:"count,omitempty" validate:"gte=0,lte=200"`
	DaysBack int    `json:"days_back,omitempty" validate:"gte=0,lte=30"`
}

// BatchRequest is the body for POST /analyze-batch.
type BatchRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,max=50,dive,required"`
	Count   int      `json:"count,omitempty" validate:"gte=0,lte=100"`
}

// RefreshRequest is the optional body for POST /refresh-data.
type RefreshRequest struct {
	Symbols    []string `json:"symbols,omitempty" validate:"max=50,dive,required"`
	PageSize   int      `json:"page_size,omitempty" validate:"gte=0,lte=100"`
	DaysBack   int      `json:"days_back,omitempty" validate:"gte=0,lte=30"`
	SkipNews   bool     `json:"skip_news,omitempty"`
	SkipPrices bool     `json:"skip_prices,omitempty"`
}

// SentimentHistory is the stored sentiment of one symbol.
type SentimentHistory struct {
	Symbol           string                   `json:"symbol"`
	Days             int                      `json:"days"`
	ArticlesFound    int                      `json:"articles_found"`
	OverallSentiment *models.OverallSentiment `json:"overall_sentiment"`
	Articles         []models.ScoredArticle   `json:"articles"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"status":        "ok",
		"message":       "StockPulse API is running",
		"version":       Version,
		"market_status": utils.MarketStatus(),
		"symbols":       s.cfg.SymbolList(),
	}
	if s.deps.Repo != nil {
		if usage, err := s.deps.Repo.UsageToday(r.Context()); err == nil {
			data["api_usage"] = s.withLimits(usage)
		} else {
			log.Warn().Err(err).Msg("health: read api usage")
		}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) handleAnalyzeSentiment(w http.ResponseWriter, r *http.Request) {
	var req SentimentRequest
	if !s.decode(w, r, &req) {
		return
	}
	symbol, ok := s.symbol(w, req.Symbol)
	if !ok {
		return
	}

	result, err := s.deps.Analyzer.AnalyzeSymbol(r.Context(), symbol, req.Count)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result})
}

func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.deps.Analyzer.AnalyzeText(req.Text)})
}

func (s *Server) handleAnalyzeCorrelation(w http.ResponseWriter, r *http.Request) {
	var req CorrelationRequest
	if !s.decode(w, r, &req) {
		return
	}
	symbol, ok := s.symbol(w, req.Symbol)
	if !ok {
		return
	}

	report, err := s.deps.Analyzer.AnalyzeCorrelation(r.Context(), symbol)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: report})
}

func (s *Server) handleGetNews(w http.ResponseWriter, r *http.Request) {
	var req NewsRequest
	if !s.decode(w, r, &req) {
		return
	}
	symbol, ok := s.symbol(w, req.Symbol)
	if !ok {
		return
	}

	result, err := s.deps.Analyzer.GetNews(r.Context(), symbol, req.Count, req.DaysBack)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result})
}

func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	symbols := make([]string, 0, len(req.Symbols))
	for _, raw := range req.Symbols {
		symbol, ok := s.symbol(w, raw)
		if !ok {
			return
		}
		symbols = append(symbols, symbol)
	}

	result, err := s.deps.Analyzer.AnalyzeBatch(r.Context(), symbols, req.Count)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}
	opts := pipeline.RefreshOptions{
		PageSize:   req.PageSize,
		DaysBack:   req.DaysBack,
		SkipNews:   req.SkipNews,
		SkipPrices: req.SkipPrices,
	}
	for _, raw := range req.Symbols {
		symbol, ok := s.symbol(w, raw)
		if !ok {
			return
		}
		opts.Symbols = append(opts.Symbols, symbol)
	}

	// A client disconnect does not abort a running collection.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.collectTimeout())
	defer cancel()

	result, err := s.deps.Refresher.Refresh(ctx, opts)
	if err != nil && result == nil {
		writeFailure(w, err)
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("run_id", result.RunID).Msg("refresh interrupted")
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result})
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.deps.Repo.Stocks(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: stocks})
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	symbol, ok := s.symbol(w, chi.URLParam(r, "symbol"))
	if !ok {
		return
	}
	stock, err := s.deps.Repo.Stock(r.Context(), symbol)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: stock})
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	symbol, ok := s.symbol(w, chi.URLParam(r, "symbol"))
	if !ok {
		return
	}
	days, ok := queryInt(w, r, "days", 30, 1, 365)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 50, 1, 500)
	if !ok {
		return
	}

	articles, err := s.deps.Repo.ArticlesWithSentiment(r.Context(), symbol, days, limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	scores := make([]float64, 0, len(articles))
	for _, a := range articles {
		scores = append(scores, a.SentimentScore)
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: SentimentHistory{
			Symbol:           symbol,
			Days:             days,
			ArticlesFound:    len(articles),
			OverallSentiment: sentiment.Overall(scores),
			Articles:         articles,
		},
	})
}

func (s *Server) handleSentimentBatch(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 7, 1, 365)
	if !ok {
		return
	}
	summary, err := s.deps.Repo.BatchSentimentSummary(r.Context(), days)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: summary})
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	symbol, ok := s.symbol(w, chi.URLParam(r, "symbol"))
	if !ok {
		return
	}
	days, ok := queryInt(w, r, "days", 90, 1, 365)
	if !ok {
		return
	}
	report, err := s.deps.Repo.CorrelationData(r.Context(), symbol, days)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: report})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	symbol, ok := s.symbol(w, chi.URLParam(r, "symbol"))
	if !ok {
		return
	}
	days, ok := queryInt(w, r, "days", 30, 1, 365)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 50, 1, 500)
	if !ok {
		return
	}
	articles, err := s.deps.Repo.ArticlesWithSentiment(r.Context(), symbol, days, limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: articles})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.deps.Repo.UsageToday(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.withLimits(usage)})
}

// ============================================================
// Helpers
// ============================================================

func (s *Server) withLimits(u models.APIUsage) models.APIUsage {
	u.MaxNewsCalls = s.cfg.Quota.MaxNewsCalls
	u.MaxStockCalls = s.cfg.Quota.MaxStockCalls
	return u
}

func (s *Server) collectTimeout() time.Duration {
	if s.cfg.Scheduler.Timeout > 0 {
		return s.cfg.Scheduler.Timeout
	}
	return 15 * time.Minute
}

// decode reads a JSON body into dst and validates it. On failure it writes
// a 400 and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return s.decodeBody(w, r, dst, false)
}

// decodeBody is decode with an optionally empty body, which leaves dst at
// its zero value. Chunked requests report no length, so emptiness is only
// known once the decoder hits EOF.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// symbol normalizes raw and checks it against the configured universe. On
// failure it writes the error and returns false.
func (s *Server) symbol(w http.ResponseWriter, raw string) (string, bool) {
	symbol := utils.NormalizeSymbol(raw)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "Symbol is required")
		return "", false
	}
	if !utils.IsValidSymbol(symbol) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid symbol: %q", raw))
		return "", false
	}
	if !s.cfg.HasSymbol(symbol) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown symbol: %s", symbol))
		return "", false
	}
	return symbol, true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be an integer between %d and %d", key, lo, hi))
		return 0, false
	}
	return n, true
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// validationMessage turns the first validator failure into a client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := fe.Field()
	switch {
	case field == "symbols" && (fe.Tag() == "required" || fe.Tag() == "min"):
		return "Symbols array is required"
	case fe.Tag() == "required":
		return strings.ToUpper(field[:1]) + field[1:] + " is required"
	case fe.Param() != "":
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Namespace())
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUnknownSymbol):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrRefreshInProgress):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrQuotaExceeded), datasource.IsKind(err, datasource.KindQuota):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if errors.Is(err, correlation.ErrInvalidDate) {
		log.Error().Err(err).Msg("contract violation")
	} else if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
