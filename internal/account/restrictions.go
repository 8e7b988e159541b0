package account

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	uint256Type, _   = abi.NewType("uint256", "", nil)
	bytes4ArrType, _ = abi.NewType("bytes4[]", "", nil)

	expiryOnlyArgs    = abi.Arguments{{Type: uint256Type}}
	expiryWithSelArgs = abi.Arguments{{Type: uint256Type}, {Type: bytes4ArrType}}
	maxExpiry         = big.NewInt(1 << 40)
)

// EncodeRestrictions builds a login key restrictions blob. With no
// selectors the blob is abi.encode(uint256 expiry).
func EncodeRestrictions(expiresAt time.Time, selectors ...[4]byte) ([]byte, error) {
	expiry := big.NewInt(expiresAt.Unix())
	if len(selectors) == 0 {
		return expiryOnlyArgs.Pack(expiry)
	}
	return expiryWithSelArgs.Pack(expiry, selectors)
}

// DecodeRestrictions parses a restrictions blob produced by EncodeRestrictions.
func DecodeRestrictions(blob []byte) (*LoginRestrictions, error) {
	var (
		values []interface{}
		err    error
	)
	switch {
	case len(blob) == 32:
		values, err = expiryOnlyArgs.Unpack(blob)
	case len(blob) >= 96:
		values, err = expiryWithSelArgs.Unpack(blob)
	default:
		return nil, fmt.Errorf("%w: blob is %d bytes", ErrInvalidRestrictions, len(blob))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRestrictions, err)
	}

	expiry, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: bad expiry", ErrInvalidRestrictions)
	}
	if expiry.Cmp(maxExpiry) > 0 {
		expiry = maxExpiry
	}

	r := &LoginRestrictions{
		Raw:       append([]byte(nil), blob...),
		ExpiresAt: time.Unix(expiry.Int64(), 0).UTC(),
	}
	if len(values) > 1 {
		sels, ok := values[1].([][4]byte)
		if !ok {
			return nil, fmt.Errorf("%w: bad selector list", ErrInvalidRestrictions)
		}
		r.Selectors = sels
	}
	return r, nil
}
