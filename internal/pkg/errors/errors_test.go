package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lapolinarweb/contracts/internal/account"
)

func TestAsAPIError(t *testing.T) {
	t.Run("api error passes through wrapping", func(t *testing.T) {
		err := fmt.Errorf("load: %w", NewNotFoundError("Account"))
		apiErr := AsAPIError(err)
		assert.Equal(t, "not_found", apiErr.Code)
		assert.Equal(t, "Account not found", apiErr.Message)
		assert.True(t, IsAPIError(err))
	})

	t.Run("account error keeps its code", func(t *testing.T) {
		apiErr := AsAPIError(fmt.Errorf("relay: %w", account.ErrInsufficientGasEth))
		assert.Equal(t, "BA_INSUFFICIENT_GAS_ETH", apiErr.Code)
		assert.Equal(t, "BA: Insufficient gas (ETH) for refund", apiErr.Message)
		assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
		assert.Equal(t, map[string]string{"kind": "economic"}, apiErr.Details)
	})

	t.Run("unknown error", func(t *testing.T) {
		assert.Same(t, ErrInternal, AsAPIError(fmt.Errorf("boom")))
	})
}

func TestAPIError_Copies(t *testing.T) {
	e := ErrBadRequest.WithMessage("bad address").WithDetails("x")
	assert.Equal(t, "bad address", e.Message)
	assert.Equal(t, "x", e.Details)
	assert.Equal(t, "Invalid request", ErrBadRequest.Message)
}
