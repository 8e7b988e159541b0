package main

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lapolinarweb/contracts/internal/account"
	"github.com/lapolinarweb/contracts/internal/jsonrpc"
)

// run executes walletctl with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() {
		stdout = prev
		output = "text"
	})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "0"},
		{in: "1000", want: "1000"},
		{in: "1wei", want: "1"},
		{in: "1gwei", want: "1000000000"},
		{in: "0.5gwei", want: "500000000"},
		{in: "1ether", want: "1000000000000000000"},
		{in: "1.25 ETH", want: "1250000000000000000"},
		{in: "0.0000000001gwei", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "gwei", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseValue(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestPrintValue(t *testing.T) {
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() {
		stdout = prev
		output = "text"
	})
	v := struct {
		Data hexutil.Bytes `json:"data"`
	}{Data: hexutil.Bytes{0xca, 0xfe}}

	output = "text"
	ok, err := printValue(v)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, buf.String())

	output = "json"
	ok, err = printValue(v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"data":"0xcafe"}`, buf.String())

	buf.Reset()
	output = "yaml"
	_, err = printValue(v)
	require.NoError(t, err)
	var decoded map[string]string
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "0xcafe", decoded["data"])
}

func TestAdminCalldata(t *testing.T) {
	target := common.HexToAddress("0x5151515151515151515151515151515151515151")

	out, err := run(t, "admin", "add-firewall-entry", target.Hex(), "0xa9059cbb")
	require.NoError(t, err)

	data, err := hexutil.Decode(strings.TrimSpace(out))
	require.NoError(t, err)
	method, err := account.AdminABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "addFirewallEntry", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, target, args[0])
	assert.Equal(t, [4]byte{0xa9, 0x05, 0x9c, 0xbb}, args[1])

	out, err = run(t, "admin", "initiate-change", "maxGasPrice", "20gwei", "-o", "json")
	require.NoError(t, err)
	var res struct {
		Data hexutil.Bytes `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	method, err = account.AdminABI.MethodById(res.Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "initiateChange", method.Name)
	args, err = method.Inputs.Unpack(res.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, [32]byte(account.FieldMaxGasPrice), args[0])
	assert.Equal(t, [32]byte(common.BigToHash(big.NewInt(20_000_000_000))), args[1])

	_, err = run(t, "admin", "execute-change", "colour")
	assert.Error(t, err)
}

func TestSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	wallet := common.HexToAddress("0xacc0acc0acc0acc0acc0acc0acc0acc0acc0acc0")
	target := common.HexToAddress("0x5151515151515151515151515151515151515151")

	out, err := run(t, "sign",
		"--account", wallet.Hex(),
		"--to", target.Hex(),
		"--value", "1gwei",
		"--gas-price", "2gwei",
		"--nonce", "3",
		"--chain-id", "5",
		"--key-class", "login",
		"--key", hexutil.Encode(crypto.FromECDSA(key)),
		"-o", "json",
	)
	require.NoError(t, err)

	var params jsonrpc.RelayParams
	require.NoError(t, json.Unmarshal([]byte(out), &params))
	assert.Equal(t, wallet, *params.Account)
	assert.Equal(t, uint64(3), uint64(*params.Nonce))
	assert.Equal(t, "login", params.KeyClass)

	tx, err := params.MetaTransaction()
	require.NoError(t, err)
	hash := account.MessageHash(account.DomainLoginKey, big.NewInt(5), wallet, tx)
	recovered, err := account.NewSignatureVerifier(0).Recover(hash, params.Signature)
	require.NoError(t, err)
	assert.Equal(t, signer, recovered)
}

func TestVerify(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotMethod = req.Method
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1626ba7e"}`))
	}))
	defer srv.Close()

	wallet := common.HexToAddress("0xacc0acc0acc0acc0acc0acc0acc0acc0acc0acc0")
	hash := crypto.Keccak256Hash([]byte("hello"))
	sig := hexutil.Encode(make([]byte, 65))

	out, err := run(t, "verify", wallet.Hex(), hash.Hex(), sig, "--scope", "auth", "--rpc", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "wallet_isValidAuthKeySignature", gotMethod)
	assert.Contains(t, out, "valid (0x1626ba7e)")

	_, err = run(t, "verify", wallet.Hex(), hash.Hex(), sig, "--scope", "root", "--rpc", srv.URL)
	assert.Error(t, err)
}

func TestRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32002,"message":"account not found"}}`))
	}))
	defer srv.Close()

	_, err := run(t, "nonce", "0xacc0acc0acc0acc0acc0acc0acc0acc0acc0acc0", "--rpc", srv.URL)
	var rpcErr *rpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32002, rpcErr.Code)
}

func TestAccountCreate_SendsAPIKey(t *testing.T) {
	var gotKey, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotMethod, gotKey = req.Method, r.Header.Get("X-API-Key")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"address":"0x000000000000000000000000000000000000acc0","nonce":"0x0"}}`))
	}))
	defer srv.Close()

	out, err := run(t, "account", "create", "0x000000000000000000000000000000000000acc0",
		"--auth-key", "0x00000000000000000000000000000000000000a1",
		"--api-key", "factory-secret", "--rpc", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "wallet_createAccount", gotMethod)
	assert.Equal(t, "factory-secret", gotKey)
	assert.Contains(t, out, "acc0")
}
