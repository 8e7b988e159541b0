package jsonrpc

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lapolinarweb/contracts/internal/account"
	"github.com/lapolinarweb/contracts/internal/middleware"
	"github.com/lapolinarweb/contracts/internal/models"
	apierrors "github.com/lapolinarweb/contracts/internal/pkg/errors"
	"github.com/lapolinarweb/contracts/internal/service"
)

// ERC-1271 answers.
var (
	MagicValue   = hexutil.Bytes{0x16, 0x26, 0xba, 0x7e}
	InvalidValue = hexutil.Bytes{0xff, 0xff, 0xff, 0xff}
)

// RelayParams is the single parameter of wallet_relay.
type RelayParams struct {
	Account      *common.Address `json:"account" validate:"required"`
	To           *common.Address `json:"to" validate:"required"`
	Value        *hexutil.Big    `json:"value"`
	Data         hexutil.Bytes   `json:"data"`
	GasPrice     *hexutil.Big    `json:"gasPrice" validate:"required"`
	GasLimit     hexutil.Uint64  `json:"gasLimit"`
	GasOverhead  hexutil.Uint64  `json:"gasOverhead"`
	FeeToken     common.Address  `json:"feeToken"`
	FeeTokenRate *hexutil.Big    `json:"feeTokenRate"`
	Nonce        *hexutil.Uint64 `json:"nonce" validate:"required"`
	KeyClass     string          `json:"keyClass" validate:"required,oneof=auth login"`
	Signature    hexutil.Bytes   `json:"signature"`
}

// MetaTransaction converts the params into an engine meta-transaction.
func (p *RelayParams) MetaTransaction() (*account.MetaTransaction, error) {
	class, err := account.ParseKeyClass(p.KeyClass)
	if err != nil {
		return nil, ErrInvalidParams(err.Error())
	}
	tx := &account.MetaTransaction{
		Nonce:        uint64(*p.Nonce),
		To:           *p.To,
		Value:        bigOrZero(p.Value),
		Data:         p.Data,
		GasPrice:     bigOrZero(p.GasPrice),
		GasLimit:     uint64(p.GasLimit),
		GasOverhead:  uint64(p.GasOverhead),
		FeeToken:     p.FeeToken,
		FeeTokenRate: bigOrZero(p.FeeTokenRate),
		KeyClass:     class,
		Signature:    p.Signature,
	}
	return tx, nil
}

func bigOrZero(b *hexutil.Big) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.ToInt())
}

// CreateAccountParams is the single parameter of wallet_createAccount.
type CreateAccountParams struct {
	Address        *common.Address `json:"address" validate:"required"`
	AuthKey        *common.Address `json:"authKey" validate:"required"`
	Implementation common.Address  `json:"implementation"`
	Version        string          `json:"version" validate:"max=64"`
}

// ReceiptResult is a relay receipt as returned over JSON-RPC.
type ReceiptResult struct {
	ID           uuid.UUID      `json:"id"`
	TxHash       string         `json:"txHash"`
	Account      string         `json:"account"`
	Nonce        hexutil.Uint64 `json:"nonce"`
	Signer       string         `json:"signer"`
	KeyClass     string         `json:"keyClass"`
	Relayer      string         `json:"relayer"`
	Outcome      string         `json:"outcome"`
	RevertReason *string        `json:"revertReason,omitempty"`
	ReturnData   hexutil.Bytes  `json:"returnData,omitempty"`
	GasUsed      hexutil.Uint64 `json:"gasUsed"`
	Refund       string         `json:"refund"`
	FeeToken     string         `json:"feeToken"`
	CreatedAt    time.Time      `json:"createdAt,omitzero"`
}

func newReceiptResult(r *models.Receipt) *ReceiptResult {
	return &ReceiptResult{
		ID:           r.ID,
		TxHash:       r.TxHash,
		Account:      r.Account,
		Nonce:        hexutil.Uint64(r.Nonce),
		Signer:       r.Signer,
		KeyClass:     r.KeyClass,
		Relayer:      r.Relayer,
		Outcome:      r.Outcome,
		RevertReason: r.RevertReason,
		ReturnData:   r.ReturnData,
		GasUsed:      hexutil.Uint64(r.GasUsed),
		Refund:       r.Refund,
		FeeToken:     r.FeeToken,
		CreatedAt:    r.CreatedAt,
	}
}

// WalletHandler implements the wallet_* methods.
type WalletHandler struct {
	svc      service.RelayService
	validate *validator.Validate
}

// NewWalletHandler creates a new wallet handler.
func NewWalletHandler(svc service.RelayService) *WalletHandler {
	return &WalletHandler{svc: svc, validate: newValidator()}
}

// Register adds the wallet methods to h.
func (wh *WalletHandler) Register(h *Handler) {
	h.RegisterMethod("health_status", wh.HealthStatus)
	h.RegisterMethod("wallet_relay", wh.Relay)
	h.RegisterMethod("wallet_createAccount", wh.CreateAccount)
	h.RegisterMethod("wallet_getAccount", wh.GetAccount)
	h.RegisterMethod("wallet_getNonce", wh.GetNonce)
	h.RegisterMethod("wallet_getReceipt", wh.GetReceipt)
	h.RegisterMethod("wallet_listReceipts", wh.ListReceipts)
	h.RegisterMethod("wallet_isValidSignature", wh.signatureQuery(service.ScopeAny))
	h.RegisterMethod("wallet_isValidAuthKeySignature", wh.signatureQuery(service.ScopeAuthKey))
	h.RegisterMethod("wallet_isValidLoginKeySignature", wh.signatureQuery(service.ScopeLoginKey))
}

// HealthStatus returns "ok".
func (wh *WalletHandler) HealthStatus(_ context.Context, _ json.RawMessage) (any, error) {
	return "ok", nil
}

// Relay implements wallet_relay([params]).
func (wh *WalletHandler) Relay(ctx context.Context, params json.RawMessage) (any, error) {
	var p RelayParams
	if err := decodePositional(params, 1, &p); err != nil {
		return nil, err
	}
	if err := validateParams(wh.validate, &p); err != nil {
		return nil, err
	}
	tx, err := p.MetaTransaction()
	if err != nil {
		return nil, err
	}

	rec, err := wh.svc.Relay(ctx, service.RelayRequest{Account: *p.Account, Tx: tx})
	if err != nil {
		if accErr, ok := account.AsError(err); ok {
			middleware.RecordRejection(accErr.Code)
		}
		return nil, err
	}

	middleware.RecordRelay(rec.Outcome, rec.KeyClass)
	if rec.FeeToken == (common.Address{}).Hex() {
		if refund, ok := new(big.Int).SetString(rec.Refund, 10); ok {
			middleware.AddRefundWei(refund)
		}
	}
	return newReceiptResult(rec), nil
}

// CreateAccount implements wallet_createAccount([params]). Only callers
// holding the factory scope may initialize accounts.
func (wh *WalletHandler) CreateAccount(ctx context.Context, params json.RawMessage) (any, error) {
	if !middleware.HasScope(ctx, middleware.ScopeFactory) {
		return nil, apierrors.ErrForbidden.WithMessage("wallet_createAccount requires a factory API key")
	}
	var p CreateAccountParams
	if err := decodePositional(params, 1, &p); err != nil {
		return nil, err
	}
	if err := validateParams(wh.validate, &p); err != nil {
		return nil, err
	}
	return wh.svc.CreateAccount(ctx, service.CreateAccountRequest{
		Address:        *p.Address,
		AuthKey:        *p.AuthKey,
		Implementation: p.Implementation,
		Version:        p.Version,
	})
}

// GetAccount implements wallet_getAccount(account).
func (wh *WalletHandler) GetAccount(ctx context.Context, params json.RawMessage) (any, error) {
	var addr common.Address
	if err := decodePositional(params, 1, &addr); err != nil {
		return nil, err
	}
	return wh.svc.GetAccount(ctx, addr)
}

// GetNonce implements wallet_getNonce(account).
func (wh *WalletHandler) GetNonce(ctx context.Context, params json.RawMessage) (any, error) {
	var addr common.Address
	if err := decodePositional(params, 1, &addr); err != nil {
		return nil, err
	}
	nonce, err := wh.svc.GetNonce(ctx, addr)
	if err != nil {
		return nil, err
	}
	return hexutil.Uint64(nonce), nil
}

// GetReceipt implements wallet_getReceipt(id).
func (wh *WalletHandler) GetReceipt(ctx context.Context, params json.RawMessage) (any, error) {
	var id uuid.UUID
	if err := decodePositional(params, 1, &id); err != nil {
		return nil, err
	}
	rec, err := wh.svc.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	return newReceiptResult(rec), nil
}

// ListReceipts implements wallet_listReceipts(account, [limit]).
func (wh *WalletHandler) ListReceipts(ctx context.Context, params json.RawMessage) (any, error) {
	var (
		addr  common.Address
		limit int
	)
	if err := decodePositional(params, 1, &addr, &limit); err != nil {
		return nil, err
	}
	recs, err := wh.svc.ListReceipts(ctx, addr, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*ReceiptResult, 0, len(recs))
	for _, r := range recs {
		out = append(out, newReceiptResult(r))
	}
	return out, nil
}

// signatureQuery implements wallet_isValid*Signature(account, hash, signature),
// answering with the ERC-1271 magic value or 0xffffffff.
func (wh *WalletHandler) signatureQuery(scope service.SignatureScope) MethodHandler {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		var (
			addr common.Address
			hash common.Hash
			sig  hexutil.Bytes
		)
		if err := decodePositional(params, 3, &addr, &hash, &sig); err != nil {
			return nil, err
		}
		ok, err := wh.svc.IsValidSignature(ctx, addr, scope, hash, sig)
		if err != nil {
			return nil, err
		}
		if ok {
			return MagicValue, nil
		}
		return InvalidValue, nil
	}
}
