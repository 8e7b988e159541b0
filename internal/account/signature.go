package account

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/sha3"
)

// SignatureLength is the length of an r || s || v signature.
const SignatureLength = 65

// Domain separates what a signature authorizes.
type Domain string

// Signing domains.
const (
	DomainAuthKey  Domain = "executeAuthKeyMetaTransaction"
	DomainLoginKey Domain = "executeLoginKeyMetaTransaction"
)

// DomainFor returns the signing domain of a key class.
func DomainFor(class KeyClass) (Domain, error) {
	switch class {
	case KeyClassAuth:
		return DomainAuthKey, nil
	case KeyClassLogin:
		return DomainLoginKey, nil
	}
	return "", fmt.Errorf("account: no signing domain for %s", class)
}

func word(x *big.Int) []byte {
	if x == nil {
		return make([]byte, 32)
	}
	return math.U256Bytes(new(big.Int).Set(x))
}

func uintWord(x uint64) []byte {
	return word(new(big.Int).SetUint64(x))
}

// MessageHash returns the digest an account's key signs for tx. The inner
// hash binds the account, domain, chain id and every transaction field; the
// outer hash is the personal_sign prefix over it.
func MessageHash(domain Domain, chainID *big.Int, acct common.Address, tx *MetaTransaction) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte{0x19, 0x00})
	h.Write(acct.Bytes())
	h.Write([]byte(domain))
	h.Write(word(chainID))
	h.Write(uintWord(tx.Nonce))
	h.Write(tx.To.Bytes())
	h.Write(word(tx.Value))
	h.Write(crypto.Keccak256(tx.Data))
	h.Write(word(tx.GasPrice))
	h.Write(uintWord(tx.GasLimit))
	h.Write(uintWord(tx.GasOverhead))
	h.Write(tx.FeeToken.Bytes())
	h.Write(word(tx.FeeTokenRate))
	return common.BytesToHash(accounts.TextHash(h.Sum(nil)))
}

// Sign produces a 65 byte signature with v in {27, 28}.
func Sign(hash common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SignMetaTransaction fills tx.Signature for the given account.
func SignMetaTransaction(key *ecdsa.PrivateKey, chainID *big.Int, acct common.Address, tx *MetaTransaction) error {
	domain, err := DomainFor(tx.KeyClass)
	if err != nil {
		return err
	}
	sig, err := Sign(MessageHash(domain, chainID, acct, tx), key)
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// SignatureVerifier recovers signers. Recovery is pure, so results are kept
// in an optional LRU cache keyed by hash and signature.
type SignatureVerifier struct {
	cache *lru.Cache[string, common.Address]
}

// NewSignatureVerifier creates a verifier. A cacheSize of zero disables caching.
func NewSignatureVerifier(cacheSize int) *SignatureVerifier {
	v := &SignatureVerifier{}
	if cacheSize > 0 {
		v.cache, _ = lru.New[string, common.Address](cacheSize)
	}
	return v
}

// Recover returns the address that produced sig over hash. It rejects
// signatures that are not 65 bytes, carry an unknown recovery id, or have
// a high s value.
func (v *SignatureVerifier) Recover(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, ErrInvalidSignatureLength
	}

	var cacheKey string
	if v.cache != nil {
		cacheKey = string(hash[:]) + string(sig)
		if addr, ok := v.cache.Get(cacheKey); ok {
			return addr, nil
		}
	}

	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(sig[32:64]); overflow || s.IsOverHalfOrder() {
		return common.Address{}, fmt.Errorf("%w: malleable s value", ErrInvalidSignature)
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, sig[64])
	}

	pub, err := crypto.SigToPub(hash[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	addr := crypto.PubkeyToAddress(*pub)

	if v.cache != nil {
		v.cache.Add(cacheKey, addr)
	}
	return addr, nil
}
