// Package httpapi exposes the trading engine over a JSON REST API.
//
// Every /v1 route except /v1/prices acts on behalf of the user named in
// the X-User-ID header.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/alerts"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/performance"
	"github.com/rustyeddy/papertrader/sim"
)

const UserHeader = "X-User-ID"

type Deps struct {
	Engine      *sim.Engine
	Alerts      *alerts.Book
	Performance *performance.Service
	Journal     journal.Journal
	Prices      *market.PriceStore
	CORSOrigins []string
	Location    *time.Location
	Log         *zap.Logger
}

type Server struct {
	engine *sim.Engine
	alerts *alerts.Book
	perf   *performance.Service
	j      journal.Journal
	prices *market.PriceStore
	loc    *time.Location
	log    *zap.Logger

	handler http.Handler
}

func NewServer(d Deps) *Server {
	s := &Server{
		engine: d.Engine,
		alerts: d.Alerts,
		perf:   d.Performance,
		j:      d.Journal,
		prices: d.Prices,
		loc:    d.Location,
		log:    d.Log,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", UserHeader},
	})
	s.handler = c.Handler(s.routes())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/v1", func(r chi.Router) {
		r.Get("/prices", s.listPrices)

		r.Group(func(r chi.Router) {
			r.Use(WithUser)

			r.Get("/balance", s.getBalance)
			r.Post("/deposit", s.deposit)

			r.Get("/orders", s.listOrders)
			r.Post("/orders", s.placeOrder)
			r.Post("/orders/preview", s.previewOrder)
			r.Get("/orders/{id}", s.getOrder)
			r.Post("/orders/{id}/execute", s.executeOrder)
			r.Post("/orders/{id}/cancel", s.cancelOrder)
			r.Post("/orders/{id}/close", s.closePosition)

			r.Get("/positions", s.listPositions)
			r.Get("/portfolio", s.portfolio)
			r.Get("/trades", s.listTrades)
			r.Get("/trades.csv", s.exportTrades)
			r.Get("/performance", s.performance)

			r.Get("/alerts", s.listAlerts)
			r.Post("/alerts", s.addAlert)
			r.Delete("/alerts/{id}", s.removeAlert)
			r.Post("/alerts/{id}/enabled", s.setAlertEnabled)
		})
	})
	return r
}

type ctxKey string

const userIDKey ctxKey = "user_id"

// WithUser rejects requests without a user header and stores the user id
// in the request context.
func WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing " + UserHeader + " header"})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserID(r *http.Request) (string, bool) {
	v := r.Context().Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}
