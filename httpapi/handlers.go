package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/risk"
)

type placeOrderRequest struct {
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

type priceRequest struct {
	Price float64 `json:"price"`
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

type alertRequest struct {
	Symbol string  `json:"symbol"`
	Target float64 `json:"target"`
	Above  bool    `json:"above"`
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

// nonNil keeps empty lists encoding as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func badRequest(err error) error {
	return fmt.Errorf("%v: %w", err, broker.ErrInvalidInput)
}

func (s *Server) listPrices(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.prices.Snapshot())
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	bal, err := s.engine.Balance(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": bal})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	var req amountRequest
	if err := ReadJSON(r, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	bal, err := s.engine.Deposit(r.Context(), userID, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": bal})
}

func (s *Server) readOrderRequest(r *http.Request) (broker.OrderRequest, error) {
	userID, _ := UserID(r)
	var req placeOrderRequest
	if err := ReadJSON(r, &req); err != nil {
		return broker.OrderRequest{}, badRequest(err)
	}
	typ, err := broker.ParseOrderType(req.Type)
	if err != nil {
		return broker.OrderRequest{}, err
	}
	side, err := broker.ParseSide(req.Side)
	if err != nil {
		return broker.OrderRequest{}, err
	}
	return broker.OrderRequest{
		UserID:     userID,
		Symbol:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Type:       typ,
		Side:       side,
		Price:      req.Price,
		Quantity:   req.Quantity,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	}, nil
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	req, err := s.readOrderRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.engine.PlaceOrder(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, o)
}

// previewOrder reports margin, risk and reward of an order without placing it.
func (s *Server) previewOrder(w http.ResponseWriter, r *http.Request) {
	req, err := s.readOrderRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bal, err := s.engine.Balance(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := risk.PreviewOrder(req, bal, risk.DefaultLimits())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	var statuses []broker.Status
	if q := r.URL.Query().Get("status"); q != "" {
		for _, part := range strings.Split(q, ",") {
			st, err := broker.ParseStatus(part)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			statuses = append(statuses, st)
		}
	}
	orders, err := s.engine.Orders(r.Context(), userID, statuses...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(orders))
}

// ownedOrder loads an order and hides it from users who do not own it.
func (s *Server) ownedOrder(ctx context.Context, userID, orderID string) (broker.Order, error) {
	o, err := s.engine.Order(ctx, orderID)
	if err != nil {
		return broker.Order{}, err
	}
	if o.UserID != userID {
		return broker.Order{}, fmt.Errorf("order %q: %w", orderID, broker.ErrNotFound)
	}
	return o, nil
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	o, err := s.ownedOrder(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, o)
}

func (s *Server) executeOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	orderID := chi.URLParam(r, "id")
	var req priceRequest
	if err := ReadJSON(r, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	if _, err := s.ownedOrder(r.Context(), userID, orderID); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.engine.Execute(r.Context(), orderID, req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, o)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	orderID := chi.URLParam(r, "id")
	if _, err := s.ownedOrder(r.Context(), userID, orderID); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok, err := s.engine.CancelOrder(r.Context(), orderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "cancelled": ok})
}

func (s *Server) closePosition(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	orderID := chi.URLParam(r, "id")
	var req priceRequest
	if err := ReadJSON(r, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	if _, err := s.ownedOrder(r.Context(), userID, orderID); err != nil {
		s.writeError(w, r, err)
		return
	}
	realized, err := s.engine.ClosePosition(r.Context(), orderID, req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "realized_pnl": realized})
}

func (s *Server) listPositions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	positions, err := s.engine.Positions(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(positions))
}

func (s *Server) portfolio(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	v, err := s.engine.Valuation(r.Context(), userID, s.prices)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

func (s *Server) trades(r *http.Request) ([]broker.Trade, error) {
	userID, _ := UserID(r)
	if day := r.URL.Query().Get("day"); day != "" {
		trades, err := journal.TradesOnDay(r.Context(), s.j, userID, s.loc, day)
		if err != nil && !errors.Is(err, broker.ErrUnavailable) {
			return nil, badRequest(err)
		}
		return trades, err
	}
	return s.engine.Trades(r.Context(), userID)
}

func (s *Server) listTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trades(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(trades))
}

func (s *Server) exportTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trades(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trades.csv"`)
	if err := journal.WriteTradesCSV(w, trades); err != nil {
		s.log.Warn("write trades csv", zap.Error(err))
	}
}

func (s *Server) performance(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	m, err := s.perf.ComputeForUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	WriteJSON(w, http.StatusOK, nonNil(s.alerts.List(userID)))
}

func (s *Server) addAlert(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	var req alertRequest
	if err := ReadJSON(r, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	rule, err := s.alerts.Add(userID, req.Symbol, market.Price(req.Target), req.Above)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, rule)
}

// ownedAlert reports whether ruleID belongs to userID.
func (s *Server) ownedAlert(userID, ruleID string) error {
	for _, rule := range s.alerts.List(userID) {
		if rule.ID == ruleID {
			return nil
		}
	}
	return fmt.Errorf("alert %q: %w", ruleID, broker.ErrNotFound)
}

func (s *Server) removeAlert(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	ruleID := chi.URLParam(r, "id")
	if err := s.ownedAlert(userID, ruleID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.alerts.Remove(ruleID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setAlertEnabled(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	ruleID := chi.URLParam(r, "id")
	var req enabledRequest
	if err := ReadJSON(r, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	if err := s.ownedAlert(userID, ruleID); err != nil {
		s.writeError(w, r, err)
		return
	}
	rule, err := s.alerts.SetEnabled(ruleID, req.Enabled)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rule)
}
