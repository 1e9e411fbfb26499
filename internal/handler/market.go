package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/rest/httpx"

	"marketcal/internal/svc"
	"marketcal/pkg/marketdata"
	"marketcal/pkg/marketdata/store"
)

type symbolRequest struct {
	Symbol string `path:"symbol"`
	Month  string `form:"month,optional"` // YYYY-MM, defaults to the current month
}

func (r *symbolRequest) normalise() error {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	if r.Symbol == "" {
		return errors.New("symbol is required")
	}
	return nil
}

func (r *symbolRequest) month(now time.Time) (time.Time, error) {
	if strings.TrimSpace(r.Month) == "" {
		return now, nil
	}
	parsed, err := time.Parse("2006-01", r.Month)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, want YYYY-MM", r.Month)
	}
	return parsed, nil
}

// staleAfter bounds how old stored data may be before a read triggers a
// fresh load. The scheduler keeps the active symbol well inside this
// window; the guard catches symbols the scheduler has moved off.
const staleAfter = 5 * time.Minute

// needsLoad reports whether the symbol has no stored data yet, or has data
// older than staleAfter.
func needsLoad(st *store.Store, symbol string, now time.Time) bool {
	last := st.LastUpdated(symbol)
	return last == 0 || now.Sub(time.UnixMilli(last)) > staleAfter
}

// monthMismatch reports whether the stored series ends in a different month
// than the one requested, meaning the series on hand cannot answer a
// month-scoped read.
func monthMismatch(st *store.Store, symbol string, month time.Time) bool {
	last := st.Series(symbol).Last()
	if last == nil {
		return true
	}
	ly, lm, _ := last.Date.UTC().Date()
	ry, rm, _ := month.UTC().Date()
	return ly != ry || lm != rm
}

// ensureLoaded runs the acquisition chain when the store cannot serve the
// request: on first sight of a symbol, when the stored data has gone stale,
// or when a month-scoped read asks for a month the stored series does not
// cover. Fresh same-month reads go straight to the store.
func ensureLoaded(r *http.Request, svcCtx *svc.ServiceContext, symbol string, month time.Time, monthScoped bool) error {
	if !needsLoad(svcCtx.Store, symbol, time.Now()) && !(monthScoped && monthMismatch(svcCtx.Store, symbol, month)) {
		return nil
	}
	return svcCtx.Feed.Load(r.Context(), symbol, month)
}

func writeLoadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, marketdata.ErrAPIDisabled):
		httpx.WriteJsonCtx(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, marketdata.ErrRateLimited):
		httpx.WriteJsonCtx(r.Context(), w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	default:
		httpx.ErrorCtx(r.Context(), w, err)
	}
}

// TickerHandler serves the latest ticker for a symbol.
func TickerHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req symbolRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := req.normalise(); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := ensureLoaded(r, svcCtx, req.Symbol, time.Now(), false); err != nil {
			writeLoadError(w, r, err)
			return
		}
		tick := svcCtx.Store.Ticker(req.Symbol)
		if tick == nil {
			httpx.WriteJsonCtx(r.Context(), w, http.StatusNotFound, map[string]string{"error": "no ticker for " + req.Symbol})
			return
		}
		httpx.OkJsonCtx(r.Context(), w, tick)
	}
}

// SeriesHandler serves the stored daily series for a symbol.
func SeriesHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req symbolRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := req.normalise(); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		month, err := req.month(time.Now())
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := ensureLoaded(r, svcCtx, req.Symbol, month, true); err != nil {
			writeLoadError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, map[string]any{
			"symbol":            req.Symbol,
			"series":            svcCtx.Store.Series(req.Symbol),
			"usingFallbackData": svcCtx.Store.UsingFallback(req.Symbol),
		})
	}
}

// OrderBookHandler serves the stored order book for a symbol.
func OrderBookHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req symbolRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := req.normalise(); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := ensureLoaded(r, svcCtx, req.Symbol, time.Now(), false); err != nil {
			writeLoadError(w, r, err)
			return
		}
		book := svcCtx.Store.OrderBook(req.Symbol)
		if book == nil {
			httpx.WriteJsonCtx(r.Context(), w, http.StatusNotFound, map[string]string{"error": "no order book for " + req.Symbol})
			return
		}
		httpx.OkJsonCtx(r.Context(), w, book)
	}
}

// StatusHandler reports the connectivity state and freshness for a symbol.
func StatusHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req symbolRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := req.normalise(); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, map[string]any{
			"symbol":            req.Symbol,
			"status":            svcCtx.Feed.Status(req.Symbol),
			"lastUpdated":       svcCtx.Store.LastUpdated(req.Symbol),
			"usingFallbackData": svcCtx.Store.UsingFallback(req.Symbol),
		})
	}
}

// ExportHandler streams the stored series as CSV.
func ExportHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req symbolRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := req.normalise(); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		month, err := req.month(time.Now())
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := ensureLoaded(r, svcCtx, req.Symbol, month, true); err != nil {
			writeLoadError(w, r, err)
			return
		}
		rows := svcCtx.Store.ExportSeries(req.Symbol)
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", strings.ToLower(req.Symbol)))
		writer := csv.NewWriter(w)
		if err := writer.WriteAll(rows); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		}
	}
}

// RefetchHandler flushes the request cache and reloads the symbol.
func RefetchHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req symbolRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := req.normalise(); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		month, err := req.month(time.Now())
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := svcCtx.Feed.Refetch(r.Context(), req.Symbol, month); err != nil {
			writeLoadError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, svcCtx.Feed.Snapshot(req.Symbol))
	}
}
