package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lapolinarweb/contracts/internal/account"
	"github.com/lapolinarweb/contracts/internal/middleware"
	"github.com/lapolinarweb/contracts/internal/models"
	apierrors "github.com/lapolinarweb/contracts/internal/pkg/errors"
	"github.com/lapolinarweb/contracts/internal/service"
)

type MockRelayService struct {
	mock.Mock
}

func (m *MockRelayService) CreateAccount(ctx context.Context, req service.CreateAccountRequest) (*service.AccountView, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AccountView), args.Error(1)
}

func (m *MockRelayService) GetAccount(ctx context.Context, addr common.Address) (*service.AccountView, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AccountView), args.Error(1)
}

func (m *MockRelayService) GetNonce(ctx context.Context, addr common.Address) (uint64, error) {
	args := m.Called(ctx, addr)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockRelayService) Relay(ctx context.Context, req service.RelayRequest) (*models.Receipt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Receipt), args.Error(1)
}

func (m *MockRelayService) GetReceipt(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Receipt), args.Error(1)
}

func (m *MockRelayService) ListReceipts(ctx context.Context, addr common.Address, limit int) ([]*models.Receipt, error) {
	args := m.Called(ctx, addr, limit)
	return args.Get(0).([]*models.Receipt), args.Error(1)
}

func (m *MockRelayService) IsValidSignature(ctx context.Context, addr common.Address, scope service.SignatureScope, hash common.Hash, sig []byte) (bool, error) {
	args := m.Called(ctx, addr, scope, hash, sig)
	return args.Bool(0), args.Error(1)
}

const acct = "0x000000000000000000000000000000000000acc0"

func call(t *testing.T, srv http.Handler, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	return callWithKey(t, srv, body, "")
}

func callWithKey(t *testing.T, srv http.Handler, body, apiKey string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func rpcBody(method, params string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q,"params":%s}`, method, params)
}

func relayParams(sigHex string) string {
	return fmt.Sprintf(`[{"account":%q,"to":"0x0000000000000000000000000000000000005151","value":"0x0","data":"0x","gasPrice":"0x3b9aca00","gasLimit":"0x186a0","nonce":"0x0","keyClass":"auth","signature":%q}]`, acct, sigHex)
}

func TestHandler_Protocol(t *testing.T) {
	srv := NewServer(ServerConfig{Service: new(MockRelayService)})

	t.Run("GET rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		rec, resp := call(t, srv, `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeParse, resp.Error.Code)
	})

	t.Run("wrong version", func(t *testing.T) {
		_, resp := call(t, srv, `{"jsonrpc":"1.0","id":1,"method":"health_status"}`)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)
	})

	t.Run("unknown method", func(t *testing.T) {
		_, resp := call(t, srv, rpcBody("eth_sendTransaction", "[]"))
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
	})

	t.Run("health", func(t *testing.T) {
		_, resp := call(t, srv, rpcBody("health_status", "[]"))
		assert.Nil(t, resp.Error)
		assert.Equal(t, "ok", resp.Result)
	})

	t.Run("batch", func(t *testing.T) {
		body := `[` + rpcBody("health_status", "[]") + `,` + rpcBody("nope", "[]") + `]`
		req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		var resps []Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resps))
		require.Len(t, resps, 2)
		assert.Nil(t, resps[0].Error)
		require.NotNil(t, resps[1].Error)
		assert.Equal(t, ErrCodeMethodNotFound, resps[1].Error.Code)
	})

	t.Run("empty batch", func(t *testing.T) {
		rec, _ := call(t, srv, `[]`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Contains(t, srv.RegisteredMethods(), "wallet_relay")
}

func TestWallet_Relay(t *testing.T) {
	svc := new(MockRelayService)
	srv := NewServer(ServerConfig{Service: svc})
	sig := "0x" + strings.Repeat("11", 65)

	receipt := &models.Receipt{
		ID:       uuid.New(),
		Account:  common.HexToAddress(acct).Hex(),
		Nonce:    0,
		KeyClass: "auth",
		Outcome:  "success",
		GasUsed:  60000,
		Refund:   "60000000000000",
		FeeToken: common.Address{}.Hex(),
	}
	svc.On("Relay", mock.Anything, mock.MatchedBy(func(req service.RelayRequest) bool {
		return req.Account == common.HexToAddress(acct) &&
			req.Tx.KeyClass == account.KeyClassAuth &&
			req.Tx.GasPrice.Int64() == 1_000_000_000 &&
			req.Tx.GasLimit == 100_000 &&
			len(req.Tx.Signature) == 65
	})).Return(receipt, nil).Once()

	_, resp := call(t, srv, rpcBody("wallet_relay", relayParams(sig)))
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	assert.Equal(t, "success", result["outcome"])
	assert.Equal(t, "60000000000000", result["refund"])
	assert.Equal(t, "0xea60", result["gasUsed"])
	svc.AssertExpectations(t)
}

func TestWallet_RelayErrors(t *testing.T) {
	sig := "0x" + strings.Repeat("11", 65)

	t.Run("missing params", func(t *testing.T) {
		srv := NewServer(ServerConfig{Service: new(MockRelayService)})
		_, resp := call(t, srv, rpcBody("wallet_relay", "[]"))
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	})

	t.Run("bad key class", func(t *testing.T) {
		srv := NewServer(ServerConfig{Service: new(MockRelayService)})
		params := strings.Replace(relayParams(sig), `"auth"`, `"root"`, 1)
		_, resp := call(t, srv, rpcBody("wallet_relay", params))
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "keyClass")
	})

	t.Run("missing nonce", func(t *testing.T) {
		srv := NewServer(ServerConfig{Service: new(MockRelayService)})
		params := strings.Replace(relayParams(sig), `"nonce":"0x0",`, ``, 1)
		_, resp := call(t, srv, rpcBody("wallet_relay", params))
		require.NotNil(t, resp.Error)
		assert.Equal(t, "nonce is required", resp.Error.Message)
	})

	tests := []struct {
		name    string
		err     error
		code    int
		message string
		data    string
	}{
		{"authorization", account.ErrAuthKeyInvalid, ErrCodeAuthorization, "AKMTA: Auth key is invalid", "AKMTA_AUTH_KEY_INVALID"},
		{"policy", account.ErrBlockedByFirewall, ErrCodePolicy, "BA: Transaction blocked by the firewall", "BA_BLOCKED_BY_FIREWALL"},
		{"wrapped invariant", fmt.Errorf("%w: got 0, next is 3", account.ErrNonceUsed), ErrCodeInvariant, "BA: Nonce already used", ""},
		{"economic", account.ErrInsufficientGasEth, ErrCodeEconomic, account.ErrInsufficientGasEth.Message, ""},
		{"busy", apierrors.ErrAccountBusy, ErrCodeAccountBusy, apierrors.ErrAccountBusy.Message, "account_busy"},
		{"not found", apierrors.NewNotFoundError("Account"), ErrCodeResourceNotFound, "Account not found", "not_found"},
		{"internal", errors.New("pg: connection refused"), ErrCodeInternal, "internal error", "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockRelayService)
			svc.On("Relay", mock.Anything, mock.Anything).Return(nil, tt.err)
			srv := NewServer(ServerConfig{Service: svc})

			_, resp := call(t, srv, rpcBody("wallet_relay", relayParams(sig)))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			data, ok := resp.Error.Data.(map[string]any)
			require.True(t, ok)
			if tt.data != "" {
				assert.Equal(t, tt.data, data["code"])
			}
			if tt.code == ErrCodeInternal {
				assert.NotEmpty(t, data["traceId"])
			}
		})
	}
}

func TestWallet_SignatureQueries(t *testing.T) {
	hash := common.HexToHash("0x1234")
	sig := "0x" + strings.Repeat("22", 65)

	tests := []struct {
		method string
		scope  service.SignatureScope
		valid  bool
		want   string
	}{
		{"wallet_isValidSignature", service.ScopeAny, true, "0x1626ba7e"},
		{"wallet_isValidAuthKeySignature", service.ScopeAuthKey, false, "0xffffffff"},
		{"wallet_isValidLoginKeySignature", service.ScopeLoginKey, true, "0x1626ba7e"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			svc := new(MockRelayService)
			svc.On("IsValidSignature", mock.Anything, common.HexToAddress(acct), tt.scope, hash, mock.Anything).
				Return(tt.valid, nil)
			srv := NewServer(ServerConfig{Service: svc})

			params := fmt.Sprintf(`[%q,%q,%q]`, acct, hash.Hex(), sig)
			_, resp := call(t, srv, rpcBody(tt.method, params))
			require.Nil(t, resp.Error)
			assert.Equal(t, tt.want, resp.Result)
		})
	}

	t.Run("length error", func(t *testing.T) {
		svc := new(MockRelayService)
		svc.On("IsValidSignature", mock.Anything, mock.Anything, service.ScopeAny, mock.Anything, mock.Anything).
			Return(false, account.ErrInvalidSigLength)
		srv := NewServer(ServerConfig{Service: svc})

		params := fmt.Sprintf(`[%q,%q,"0x00"]`, acct, hash.Hex())
		_, resp := call(t, srv, rpcBody("wallet_isValidSignature", params))
		require.NotNil(t, resp.Error)
		assert.Equal(t, account.ErrInvalidSigLength.Message, resp.Error.Message)
	})
}

func TestWallet_Reads(t *testing.T) {
	svc := new(MockRelayService)
	srv := NewServer(ServerConfig{Service: svc})
	addr := common.HexToAddress(acct)

	svc.On("GetNonce", mock.Anything, addr).Return(uint64(7), nil)
	_, resp := call(t, srv, rpcBody("wallet_getNonce", fmt.Sprintf(`[%q]`, acct)))
	require.Nil(t, resp.Error)
	assert.Equal(t, "0x7", resp.Result)

	svc.On("GetAccount", mock.Anything, addr).Return(&service.AccountView{Address: addr, Version: "v1"}, nil)
	_, resp = call(t, srv, rpcBody("wallet_getAccount", fmt.Sprintf(`[%q]`, acct)))
	require.Nil(t, resp.Error)
	assert.Equal(t, "v1", resp.Result.(map[string]any)["version"])

	id := uuid.New()
	svc.On("GetReceipt", mock.Anything, id).Return(&models.Receipt{ID: id, Outcome: "silent_revert"}, nil)
	_, resp = call(t, srv, rpcBody("wallet_getReceipt", fmt.Sprintf(`[%q]`, id)))
	require.Nil(t, resp.Error)
	assert.Equal(t, "silent_revert", resp.Result.(map[string]any)["outcome"])

	svc.On("ListReceipts", mock.Anything, addr, 5).Return([]*models.Receipt{{ID: id}}, nil)
	_, resp = call(t, srv, rpcBody("wallet_listReceipts", fmt.Sprintf(`[%q,5]`, acct)))
	require.Nil(t, resp.Error)
	assert.Len(t, resp.Result, 1)

	_, resp = call(t, srv, rpcBody("wallet_getReceipt", `["not-a-uuid"]`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
}

func TestWallet_CreateAccount(t *testing.T) {
	svc := new(MockRelayService)
	srv := middleware.APIKeyAuth(middleware.StaticAPIKeys([]string{"factory-secret"}, middleware.ScopeFactory))(
		NewServer(ServerConfig{Service: svc}))
	authKey := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	params := fmt.Sprintf(`[{"address":%q,"authKey":%q,"version":"2020021700"}]`, acct, authKey.Hex())

	t.Run("without factory key", func(t *testing.T) {
		_, resp := call(t, srv, rpcBody("wallet_createAccount", params))
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeUnauthorized, resp.Error.Code)
		svc.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
	})

	t.Run("unknown key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(rpcBody("wallet_createAccount", params)))
		req.Header.Set(middleware.APIKeyHeader, "guess")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), `"unauthorized"`)
		svc.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
	})

	t.Run("factory key", func(t *testing.T) {
		svc.On("CreateAccount", mock.Anything, service.CreateAccountRequest{
			Address: common.HexToAddress(acct),
			AuthKey: authKey,
			Version: "2020021700",
		}).Return(nil, account.ErrImproperInitOrder).Once()

		_, resp := callWithKey(t, srv, rpcBody("wallet_createAccount", params), "factory-secret")
		require.NotNil(t, resp.Error)
		assert.Equal(t, "AI: Improper initialization order", resp.Error.Message)

		_, resp = callWithKey(t, srv, rpcBody("wallet_createAccount", `[{"version":"x"}]`), "factory-secret")
		require.NotNil(t, resp.Error)
		assert.Equal(t, "address is required", resp.Error.Message)
		svc.AssertExpectations(t)
	})
}
