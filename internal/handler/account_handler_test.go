package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lapolinarweb/contracts/internal/models"
	apierrors "github.com/lapolinarweb/contracts/internal/pkg/errors"
	"github.com/lapolinarweb/contracts/internal/service"
)

// MockRelayService mocks the read side of service.RelayService.
type MockRelayService struct {
	mock.Mock
	service.RelayService
}

func (m *MockRelayService) GetAccount(ctx context.Context, addr common.Address) (*service.AccountView, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AccountView), args.Error(1)
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

func serve(h *AccountHandler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAccountHandler_GetAccount(t *testing.T) {
	svc := new(MockRelayService)
	h := NewAccountHandler(svc)
	addr := common.HexToAddress("0x000000000000000000000000000000000000acc0")

	svc.On("GetAccount", mock.Anything, addr).Return(&service.AccountView{Address: addr, Version: "v1"}, nil)

	rec := serve(h, "/accounts/"+addr.Hex())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data service.AccountView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "v1", body.Data.Version)

	rec = serve(h, "/accounts/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountHandler_NotFound(t *testing.T) {
	svc := new(MockRelayService)
	h := NewAccountHandler(svc)
	id := uuid.New()

	svc.On("GetReceipt", mock.Anything, id).Return(nil, apierrors.NewNotFoundError("Receipt"))

	rec := serve(h, "/receipts/"+id.String())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")

	rec = serve(h, "/receipts/zzz")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountHandler_ListReceipts(t *testing.T) {
	svc := new(MockRelayService)
	h := NewAccountHandler(svc)
	addr := common.HexToAddress("0x000000000000000000000000000000000000acc0")

	svc.On("ListReceipts", mock.Anything, addr, 10).Return([]*models.Receipt{{Outcome: "success"}}, nil)

	rec := serve(h, "/accounts/"+addr.Hex()+"/receipts?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"success"`)

	rec = serve(h, "/accounts/"+addr.Hex()+"/receipts?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)
}
