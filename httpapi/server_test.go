package httpapi

import (
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tychosim/vmsim/feed"
	"github.com/tychosim/vmsim/router"
	"github.com/tychosim/vmsim/selector"
)

type stubBackend struct {
	sel       *selector.Selector
	pools     *feed.PoolSet
	lastBlock uint64
	lastOK    bool
	buildErr  error
	signErr   error
}

func (b *stubBackend) Pools() *feed.PoolSet         { return b.pools }
func (b *stubBackend) Selector() *selector.Selector { return b.sel }
func (b *stubBackend) LastBlock() (uint64, bool)    { return b.lastBlock, b.lastOK }
func (b *stubBackend) BuildSwapCall(tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int) (router.SwapCall, error) {
	if b.buildErr != nil {
		return router.SwapCall{}, b.buildErr
	}
	return router.SwapCall{
		AmountIn:     amountIn,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		MinAmountOut: minAmountOut,
		Receiver:     tokenIn,
		ProtocolData: []byte{0x01},
		Permit: router.PermitSingle{
			Details:     router.PermitDetails{Token: tokenIn, Amount: amountIn, Expiration: 1, Nonce: 0},
			Spender:     router.Permit2Address,
			SigDeadline: big.NewInt(1),
		},
	}, nil
}
func (b *stubBackend) SignPermit(call router.SwapCall) ([]byte, error) {
	if b.signErr != nil {
		return nil, b.signErr
	}
	return make([]byte, 65), nil
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(&stubBackend{sel: selector.New(), pools: feed.NewPoolSet(), lastBlock: 42, lastOK: true})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"status":"ok"`) {
		t.Fatalf("want status ok, got %s", body)
	}
	if !strings.Contains(body, `"indexed_pools":0`) {
		t.Fatalf("want indexed_pools, got %s", body)
	}
	if !strings.Contains(body, `"last_block":42`) {
		t.Fatalf("want last_block, got %s", body)
	}
}

func TestHandleHealth_OmitsLastBlockWhenUnset(t *testing.T) {
	s := NewServer(&stubBackend{sel: selector.New(), pools: feed.NewPoolSet()})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if strings.Contains(rec.Body.String(), "last_block") {
		t.Fatalf("want last_block omitted, got %s", rec.Body.String())
	}
}

func TestHandleQuote_NotFound(t *testing.T) {
	s := NewServer(&stubBackend{sel: selector.New(), pools: feed.NewPoolSet()})
	body := strings.NewReader(`{"sell_token":"0x1111111111111111111111111111111111111111","buy_token":"0x2222222222222222222222222222222222222222","sell_amount":"100"}`)
	req := httptest.NewRequest(http.MethodPost, "/quote", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for an unrecorded pair, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleQuote_ReturnsBest(t *testing.T) {
	sel := selector.New()
	tokenIn := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenOut := common.HexToAddress("0x2222222222222222222222222222222222222222")
	sel.Record(selector.PairKey{TokenIn: tokenIn, TokenOut: tokenOut}, selector.Quote{
		PoolID:    "best",
		Protocol:  "uniswap_v2",
		AmountOut: big.NewInt(2_000_000_000_000_000_000),
		GasUsed:   100,
	})

	s := NewServer(&stubBackend{sel: sel, pools: feed.NewPoolSet()})
	body := strings.NewReader(`{"sell_token":"0x1111111111111111111111111111111111111111","buy_token":"0x2222222222222222222222222222222222222222","sell_amount":"1000000000000000000"}`)
	req := httptest.NewRequest(http.MethodPost, "/quote", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	respBody := rec.Body.String()
	if !strings.Contains(respBody, `"best_pool":"best"`) {
		t.Fatalf("want best_pool best in body, got %s", respBody)
	}
	if !strings.Contains(respBody, `"protocol":"uniswap_v2"`) {
		t.Fatalf("want protocol in body, got %s", respBody)
	}
	if !strings.Contains(respBody, `"buy_amount_raw":"2000000000000000000"`) {
		t.Fatalf("want buy_amount_raw in body, got %s", respBody)
	}
	if !strings.Contains(respBody, `"price":2`) {
		t.Fatalf("want price in body, got %s", respBody)
	}
}

func TestHandleExecute_SignFailurePropagates(t *testing.T) {
	s := NewServer(&stubBackend{sel: selector.New(), pools: feed.NewPoolSet(), signErr: errors.New("key unavailable")})
	body := strings.NewReader(`{"sell_token":"0x1111111111111111111111111111111111111111","buy_token":"0x2222222222222222222222222222222222222222","sell_amount":"100","min_buy_amount":"1"}`)
	req := httptest.NewRequest(http.MethodPost, "/execute", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500 on sign failure, got %d: %s", rec.Code, rec.Body.String())
	}
	respBody := rec.Body.String()
	if !strings.Contains(respBody, `"success":false`) {
		t.Fatalf("want success false, got %s", respBody)
	}
	if !strings.Contains(respBody, `"error":"key unavailable"`) {
		t.Fatalf("want error message, got %s", respBody)
	}
}

func TestHandleExecute_Success(t *testing.T) {
	s := NewServer(&stubBackend{sel: selector.New(), pools: feed.NewPoolSet()})
	body := strings.NewReader(`{"sell_token":"0x1111111111111111111111111111111111111111","buy_token":"0x2222222222222222222222222222222222222222","sell_amount":"100","min_buy_amount":"1"}`)
	req := httptest.NewRequest(http.MethodPost, "/execute", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	respBody := rec.Body.String()
	if !strings.Contains(respBody, `"success":true`) {
		t.Fatalf("want success true, got %s", respBody)
	}
	if strings.Contains(respBody, "transaction_hash") {
		t.Fatalf("want transaction_hash omitted, got %s", respBody)
	}
}
