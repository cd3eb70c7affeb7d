// Package httpapi implements the simulator's HTTP surface: GET /health,
// POST /quote, and POST /execute, per spec.md §6. Grounded on the
// teacher's JSON-over-HTTP server shape (httpapi used to be the
// JSON-RPC handler this package replaces) with its dispatch-table-plus-
// ServeMux pattern kept, the JSON-RPC envelope dropped for plain REST.
package httpapi

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tychosim/vmsim/feed"
	"github.com/tychosim/vmsim/router"
	"github.com/tychosim/vmsim/selector"
)

// Backend is what the HTTP layer needs from the rest of the service:
// the tracked pool set, the best-swap selector, the last applied feed
// block, and whatever the execute endpoint needs to sign a router call.
type Backend interface {
	Pools() *feed.PoolSet
	Selector() *selector.Selector
	LastBlock() (uint64, bool)
	BuildSwapCall(tokenIn, tokenOut common.Address, amountIn *big.Int, minAmountOut *big.Int) (router.SwapCall, error)
	SignPermit(call router.SwapCall) ([]byte, error)
}

// Server serves the simulator's REST API.
type Server struct {
	backend Backend
	mux     *http.ServeMux
}

// NewServer builds a Server wired to backend.
func NewServer(backend Backend) *Server {
	s := &Server{backend: backend, mux: http.NewServeMux()}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/quote", s.handleQuote)
	s.mux.HandleFunc("/execute", s.handleExecute)
	return s
}

// Handler returns the server's http.Handler, ready to be wrapped by
// MiddlewareChain and rs/cors.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// HealthResponse matches spec.md §6's pinned GET /health shape exactly.
type HealthResponse struct {
	Status       string  `json:"status"`
	IndexedPools int     `json:"indexed_pools"`
	LastBlock    *uint64 `json:"last_block,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", IndexedPools: s.backend.Pools().Len()}
	if n, ok := s.backend.LastBlock(); ok {
		resp.LastBlock = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

// QuoteRequest matches spec.md §6's pinned POST /quote body.
type QuoteRequest struct {
	SellToken  common.Address `json:"sell_token"`
	BuyToken   common.Address `json:"buy_token"`
	SellAmount string         `json:"sell_amount"`
}

// QuoteResponse matches spec.md §6's pinned POST /quote response.
type QuoteResponse struct {
	BuyAmount    float64 `json:"buy_amount"`
	BuyAmountRaw string  `json:"buy_amount_raw"`
	Price        float64 `json:"price"`
	BestPool     string  `json:"best_pool"`
	Protocol     string  `json:"protocol"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}

	var req QuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sellAmount, ok := new(big.Int).SetString(req.SellAmount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid sell_amount")
		return
	}

	pair := selector.PairKey{TokenIn: req.SellToken, TokenOut: req.BuyToken}
	best, ok := s.backend.Selector().Best(pair)
	if !ok {
		writeError(w, http.StatusBadRequest, "no quote available for this pair")
		return
	}

	// best.AmountOut is a standard-unit quote taken at selector.ProbeAmount;
	// linearly scale it by the caller's actual sell_amount, per spec.md
	// §9's documented leading-order-estimate tradeoff for non-linear
	// curves — get_amount_out remains the binding quote, not this value.
	buyAmountRaw := new(big.Int).Mul(best.AmountOut, sellAmount)
	buyAmountRaw.Div(buyAmountRaw, selector.ProbeAmount)

	price, _ := new(big.Float).Quo(
		new(big.Float).SetInt(best.AmountOut),
		new(big.Float).SetInt(selector.ProbeAmount),
	).Float64()
	// Assumes 18-decimal tokens, matching cmd/simulator's decoder
	// wiring; a later pass threading real per-token decimals through
	// the selector would replace this constant.
	buyAmount, _ := new(big.Float).Quo(
		new(big.Float).SetInt(buyAmountRaw),
		big.NewFloat(1e18),
	).Float64()

	writeJSON(w, http.StatusOK, QuoteResponse{
		BuyAmount:    buyAmount,
		BuyAmountRaw: buyAmountRaw.String(),
		Price:        price,
		BestPool:     best.PoolID,
		Protocol:     best.Protocol,
	})
}

// ExecuteRequest matches spec.md §6's pinned POST /execute body.
type ExecuteRequest struct {
	SellToken    common.Address `json:"sell_token"`
	BuyToken     common.Address `json:"buy_token"`
	SellAmount   string         `json:"sell_amount"`
	MinBuyAmount string         `json:"min_buy_amount,omitempty"`
}

// ExecuteResponse matches spec.md §6's pinned POST /execute response.
// On-chain broadcast is an external collaborator the simulator treats
// as opaque (spec.md §2's scope note): success here means the router
// call was built and signed, not that it was submitted to a node, so
// TransactionHash is never populated by this handler.
type ExecuteResponse struct {
	Success         bool    `json:"success"`
	TransactionHash *string `json:"transaction_hash,omitempty"`
	Error           *string `json:"error,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeExecuteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ExecuteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeExecuteError(w, http.StatusBadRequest, err.Error())
		return
	}

	sellAmount, ok := new(big.Int).SetString(req.SellAmount, 10)
	if !ok {
		writeExecuteError(w, http.StatusBadRequest, "invalid sell_amount")
		return
	}
	minBuyAmount := new(big.Int)
	if req.MinBuyAmount != "" {
		minBuyAmount, ok = new(big.Int).SetString(req.MinBuyAmount, 10)
		if !ok {
			writeExecuteError(w, http.StatusBadRequest, "invalid min_buy_amount")
			return
		}
	}

	call, err := s.backend.BuildSwapCall(req.SellToken, req.BuyToken, sellAmount, minBuyAmount)
	if err != nil {
		writeExecuteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	sig, err := s.backend.SignPermit(call)
	if err != nil {
		writeExecuteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	call.PermitSignature = sig

	if _, err := router.EncodeSingleSwapPermit2(call); err != nil {
		writeExecuteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ExecuteResponse{Success: true})
}

func decodeJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func writeExecuteError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ExecuteResponse{Success: false, Error: &message})
}
