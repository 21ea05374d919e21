package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"brokerage/internal/account"
	"brokerage/internal/broker"
	"brokerage/internal/domain"
	"brokerage/internal/exchange"
)

// errBadRequest marks malformed client input.
var errBadRequest = errors.New("bad request")

type createAccountRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Balance  int64  `json:"balance"`
}

type loginRequest struct {
	Password string `json:"password"`
}

type accountResponse struct {
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

// orderRequest is the body of POST /api/orders and the field set of the
// gRPC PlaceOrder struct.
type orderRequest struct {
	Type    string `json:"type"` // market or stop
	Side    string `json:"side"` // buy or sell
	Account string `json:"account"`
	Ticker  string `json:"ticker"`
	Shares  int64  `json:"shares"`
	Price   int64  `json:"price"` // stop price in cents
}

type orderResponse struct {
	ID uint64 `json:"id"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	acct, err := s.broker.CreateAccount(r.Context(), req.Name, req.Password, req.Balance)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, accountResponse{Name: acct.Name(), Balance: acct.Balance()})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.broker.DeleteAccount(r.Context(), r.PathValue("name")); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	acct, err := s.broker.GetAccount(r.Context(), r.PathValue("name"), req.Password)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, accountResponse{Name: acct.Name(), Balance: acct.Balance()})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.broker.RequestQuote(r.Context(), r.PathValue("ticker"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, q)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := s.placeOrder(r.Context(), req)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, orderResponse{ID: id})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.broker.Status())
}

// placeOrder validates req and hands the resulting order to the broker.
func (s *Server) placeOrder(ctx context.Context, req orderRequest) (uint64, error) {
	market, stop, err := buildOrder(req)
	if err != nil {
		return 0, err
	}
	if market != nil {
		if err := s.broker.PlaceMarketOrder(ctx, market); err != nil {
			return 0, err
		}
		s.log.Info("market order placed", "order_id", market.ID, "account", market.AccountID, "ticker", market.Ticker)
		return market.ID, nil
	}
	if err := s.broker.PlaceStopOrder(ctx, stop); err != nil {
		return 0, err
	}
	s.log.Info("stop order placed", "order_id", stop.ID, "account", stop.AccountID, "ticker", stop.Ticker, "price", stop.Price)
	return stop.ID, nil
}

// buildOrder validates req. Exactly one of the returned orders is non-nil.
func buildOrder(req orderRequest) (*domain.Order, *domain.StopOrder, error) {
	if req.Account == "" || req.Ticker == "" {
		return nil, nil, fmt.Errorf("%w: account and ticker are required", errBadRequest)
	}
	if req.Shares <= 0 {
		return nil, nil, fmt.Errorf("%w: shares must be positive", errBadRequest)
	}
	side := domain.Side(req.Side)
	if side != domain.SideBuy && side != domain.SideSell {
		return nil, nil, fmt.Errorf("%w: side %q", errBadRequest, req.Side)
	}

	switch req.Type {
	case "", "market":
		if side == domain.SideBuy {
			return domain.NewMarketBuy(req.Account, req.Ticker, req.Shares), nil, nil
		}
		return domain.NewMarketSell(req.Account, req.Ticker, req.Shares), nil, nil
	case "stop":
		if req.Price <= 0 {
			return nil, nil, fmt.Errorf("%w: stop price must be positive", errBadRequest)
		}
		if side == domain.SideBuy {
			return nil, domain.NewStopBuy(req.Account, req.Ticker, req.Shares, req.Price), nil
		}
		return nil, domain.NewStopSell(req.Account, req.Ticker, req.Shares, req.Price), nil
	default:
		return nil, nil, fmt.Errorf("%w: order type %q", errBadRequest, req.Type)
	}
}

// httpStatus maps broker and collaborator errors onto status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, account.ErrInvalidAccount):
		return http.StatusBadRequest
	case errors.Is(err, account.ErrInvalidLogin):
		return http.StatusUnauthorized
	case errors.Is(err, account.ErrNotFound), errors.Is(err, broker.ErrNoManager),
		errors.Is(err, exchange.ErrUnknownTicker):
		return http.StatusNotFound
	case errors.Is(err, account.ErrExists):
		return http.StatusConflict
	case errors.Is(err, broker.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
