package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/analysis"
	polygon "github.com/dgnsrekt/options-positioning/internal/api"
	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/flow"
	"github.com/dgnsrekt/options-positioning/internal/marketdata"
	"github.com/dgnsrekt/options-positioning/internal/ws"
)

// Server serves the analytics API over an analysis.Service.
type Server struct {
	service   *analysis.Service
	reloader  *ReloadManager
	cache     *marketdata.CachingProvider
	hub       *ws.Hub
	logger    *zap.Logger
	startedAt time.Time
}

// NewServer creates a Server. reloader is set only for the fixture provider
// and cache only when responses are cached; either may be nil.
func NewServer(service *analysis.Service, reloader *ReloadManager, cache *marketdata.CachingProvider, logger *zap.Logger) *Server {
	return &Server{
		service:   service,
		reloader:  reloader,
		cache:     cache,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// errBadParameter wraps parameter binding failures.
var errBadParameter = errors.New("bad parameter")

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, polygon.ErrAuthFailed):
		status = http.StatusBadGateway
	case errors.Is(err, polygon.ErrRateLimited):
		status = http.StatusServiceUnavailable
	case errors.Is(err, errBadParameter),
		errors.Is(err, analysis.ErrInvalidRequest),
		errors.Is(err, flow.ErrInvalidLookback),
		errors.Is(err, ErrInvalidDate):
		status = http.StatusBadRequest
	case errors.Is(err, ErrReloadInProgress):
		status = http.StatusConflict
	case errors.Is(err, chain.ErrNotFound), errors.Is(err, ErrDateNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chain.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func pathParam(r *http.Request, name string) (string, error) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", errors.Join(errBadParameter, err)
	}
	return v, nil
}

// queryParam binds an optional query parameter into dest, leaving it nil
// when absent.
func queryParam(r *http.Request, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dest); err != nil {
		return errors.Join(errBadParameter, err)
	}
	return nil
}

func expirationParam(r *http.Request) (time.Time, error) {
	var raw *string
	if err := queryParam(r, "expiration_date", &raw); err != nil || raw == nil {
		return time.Time{}, err
	}
	exp, err := time.Parse(chain.DateLayout, *raw)
	if err != nil {
		return time.Time{}, errors.Join(errBadParameter, err)
	}
	return exp, nil
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Provider: s.service.ProviderName(),
		Uptime:   time.Since(s.startedAt).Truncate(time.Second).String(),
	}
	if s.reloader != nil {
		date := s.reloader.CurrentDate()
		resp.DataDate = &date
	}
	if s.hub != nil {
		n := s.hub.ClientCount()
		resp.WSClients = &n
		resp.WSGroups = s.hub.GroupSizes()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GEX

func (s *Server) gexRequest(r *http.Request) (analysis.GEXRequest, error) {
	ticker, err := pathParam(r, "ticker")
	if err != nil {
		return analysis.GEXRequest{}, err
	}
	req := analysis.GEXRequest{Symbol: ticker}
	if err := queryParam(r, "spot", &req.Spot); err != nil {
		return req, err
	}
	if err := queryParam(r, "min_oi", &req.MinOI); err != nil {
		return req, err
	}

	var minDays, maxDays *int
	if err := queryParam(r, "min_expiry_days", &minDays); err != nil {
		return req, err
	}
	if err := queryParam(r, "max_expiry_days", &maxDays); err != nil {
		return req, err
	}
	req.Window = window(s.service.Settings().Window, minDays, maxDays)
	return req, nil
}

// window overlays the given bounds on the default window; nil when neither
// bound is set.
func window(def chain.Window, minDays, maxDays *int) *chain.Window {
	if minDays == nil && maxDays == nil {
		return nil
	}
	if minDays != nil {
		def.MinDays = *minDays
	}
	if maxDays != nil {
		def.MaxDays = *maxDays
	}
	return &def
}

func (s *Server) getGEX(w http.ResponseWriter, r *http.Request) {
	req, err := s.gexRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, err := s.service.GEX(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGEXResponse(profile))
}

type gexAnalyzeBody struct {
	Ticker        string   `json:"ticker"`
	Spot          *float64 `json:"spot"`
	MinExpiryDays *int     `json:"min_expiry_days"`
	MaxExpiryDays *int     `json:"max_expiry_days"`
	MinOI         *int64   `json:"min_oi"`
}

func (s *Server) analyzeGEX(w http.ResponseWriter, r *http.Request) {
	var body gexAnalyzeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, errors.Join(errBadParameter, err))
		return
	}
	profile, err := s.service.GEX(r.Context(), analysis.GEXRequest{
		Symbol: body.Ticker,
		Spot:   body.Spot,
		MinOI:  body.MinOI,
		Window: window(s.service.Settings().Window, body.MinExpiryDays, body.MaxExpiryDays),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGEXResponse(profile))
}

func (s *Server) getGEXSummary(w http.ResponseWriter, r *http.Request) {
	req, err := s.gexRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, err := s.service.GEX(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gexSummaryResponse{Ticker: profile.Ticker, Summary: profile.Summary()})
}

// Max Pain

func (s *Server) maxPainRequest(r *http.Request) (analysis.MaxPainRequest, error) {
	symbol, err := pathParam(r, "symbol")
	if err != nil {
		return analysis.MaxPainRequest{}, err
	}
	req := analysis.MaxPainRequest{Symbol: symbol}
	if err := queryParam(r, "current_price", &req.Price); err != nil {
		return req, err
	}
	req.Expiration, err = expirationParam(r)
	return req, err
}

func (s *Server) getMaxPain(w http.ResponseWriter, r *http.Request) {
	req, err := s.maxPainRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.service.MaxPain(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMaxPainResponse(result))
}

func (s *Server) getMaxPainBias(w http.ResponseWriter, r *http.Request) {
	req, err := s.maxPainRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.service.MaxPain(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMaxPainBiasResponse(result))
}

func (s *Server) getMaxPainStrikes(w http.ResponseWriter, r *http.Request) {
	req, err := s.maxPainRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.service.MaxPain(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMaxPainStrikesResponse(result))
}

// Options Flow

func (s *Server) flowResult(r *http.Request) (*flow.Result, error) {
	symbol, err := pathParam(r, "symbol")
	if err != nil {
		return nil, err
	}
	var lookback *int
	if err := queryParam(r, "lookback", &lookback); err != nil {
		return nil, err
	}
	req := analysis.FlowRequest{Symbol: symbol}
	if lookback != nil {
		req.Lookback = *lookback
	}
	return s.service.Flow(r.Context(), req)
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	result, err := s.flowResult(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFlowResponse(result))
}

func (s *Server) getFlowPCR(w http.ResponseWriter, r *http.Request) {
	result, err := s.flowResult(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPCRResponse(result))
}

func (s *Server) getFlowPremium(w http.ResponseWriter, r *http.Request) {
	result, err := s.flowResult(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPremiumResponse(result))
}

func (s *Server) getFlowUnusual(w http.ResponseWriter, r *http.Request) {
	result, err := s.flowResult(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUnusualResponse(result))
}

// Greeks

func (s *Server) getATMGreeks(w http.ResponseWriter, r *http.Request) {
	symbol, err := pathParam(r, "symbol")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var price *float64
	if err := queryParam(r, "current_price", &price); err != nil {
		s.writeError(w, r, err)
		return
	}
	atm, err := s.service.ATM(r.Context(), symbol, price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newATMResponse(atm))
}

func (s *Server) getATMGreek(w http.ResponseWriter, r *http.Request) {
	symbol, err := pathParam(r, "symbol")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	greek, err := pathParam(r, "greek")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var price *float64
	if err := queryParam(r, "current_price", &price); err != nil {
		s.writeError(w, r, err)
		return
	}
	atm, err := s.service.ATM(r.Context(), symbol, price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newATMGreekResponse(atm, greek))
}

func (s *Server) postPortfolioGreeks(w http.ResponseWriter, r *http.Request) {
	var body portfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, errors.Join(errBadParameter, err))
		return
	}
	portfolio, err := s.service.Portfolio(r.Context(), body.Positions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPortfolioResponse(portfolio))
}

// Decision

func (s *Server) getDecision(w http.ResponseWriter, r *http.Request) {
	symbol, err := pathParam(r, "symbol")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var price *float64
	if err := queryParam(r, "current_price", &price); err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.service.Decide(r.Context(), symbol, price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDecisionResponse(report))
}

// Admin

// reloadData swaps in another snapshot date in fixture mode and empties the
// response cache when one is configured.
func (s *Server) reloadData(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil && s.cache == nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "nothing to reload for provider " + s.service.ProviderName()})
		return
	}

	var date *string
	if err := queryParam(r, "date", &date); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := reloadResponse{LoadedAt: timestamp(time.Now())}
	if s.reloader != nil {
		newDate := ""
		if date != nil {
			newDate = *date
		}
		result, err := s.reloader.Reload(r.Context(), newDate)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.PreviousDate = result.PreviousDate
		resp.NewDate = result.NewDate
		resp.LoadedAt = timestamp(result.LoadedAt)
		resp.TickersLoaded = result.TickersLoaded
	}
	if s.cache != nil {
		resp.CacheEntriesPurged = s.cache.Purge()
	}

	s.logger.Info("reload served",
		zap.String("newDate", resp.NewDate),
		zap.Int("cacheEntriesPurged", resp.CacheEntriesPurged))
	writeJSON(w, http.StatusOK, resp)
}
