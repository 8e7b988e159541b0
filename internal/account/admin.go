package account

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const adminABIJSON = `[
	{"type":"function","name":"addAuthKey","inputs":[{"name":"authKey","type":"address"}],"outputs":[]},
	{"type":"function","name":"removeAuthKey","inputs":[{"name":"authKey","type":"address"}],"outputs":[]},
	{"type":"function","name":"addLoginKey","inputs":[{"name":"loginKey","type":"address"},{"name":"restrictions","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"removeLoginKey","inputs":[{"name":"loginKey","type":"address"}],"outputs":[]},
	{"type":"function","name":"addFirewallEntry","inputs":[{"name":"target","type":"address"},{"name":"selector","type":"bytes4"}],"outputs":[]},
	{"type":"function","name":"removeFirewallEntry","inputs":[{"name":"target","type":"address"},{"name":"selector","type":"bytes4"}],"outputs":[]},
	{"type":"function","name":"initiateChange","inputs":[{"name":"field","type":"bytes32"},{"name":"value","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"executeChange","inputs":[{"name":"field","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"cancelChange","inputs":[{"name":"field","type":"bytes32"}],"outputs":[]}
]`

// AdminABI is the administrative call surface an account exposes to itself.
var AdminABI = mustParseABI(adminABIJSON)

// selfCallGas is the gas charged for a call the account makes to itself.
const selfCallGas uint64 = 30000

var errUnknownAdminCall = errors.New("account: unknown administrative call")

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("account: parse abi: %v", err))
	}
	return parsed
}

// PackAdminCall encodes calldata for one of the administrative functions.
func PackAdminCall(method string, args ...interface{}) ([]byte, error) {
	return AdminABI.Pack(method, args...)
}

func (a *Account) requireAuthKeyOrSelf(caller common.Address) error {
	if caller != a.state.Address && !a.state.Keys.IsAuthKey(caller) {
		return ErrRequireAuthKeyOrSelf
	}
	return nil
}

func (a *Account) requireSelf(caller common.Address, err error) error {
	if caller != a.state.Address {
		return err
	}
	return nil
}

// dispatchAdmin runs an administrative call made by caller. Errors from the
// taxonomy are fatal to the enclosing transaction; any other error means the
// call itself was malformed.
func (a *Account) dispatchAdmin(caller common.Address, data []byte) error {
	if len(data) < 4 {
		return errUnknownAdminCall
	}
	method, err := AdminABI.MethodById(data[:4])
	if err != nil {
		return fmt.Errorf("%w: %x", errUnknownAdminCall, data[:4])
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return fmt.Errorf("account: decode %s: %w", method.Name, err)
	}

	st := a.state
	switch method.Name {
	case "addAuthKey":
		if err := a.requireAuthKeyOrSelf(caller); err != nil {
			return err
		}
		return st.Keys.AddAuthKey(args[0].(common.Address))

	case "removeAuthKey":
		if err := a.requireAuthKeyOrSelf(caller); err != nil {
			return err
		}
		return st.Keys.RemoveAuthKey(args[0].(common.Address))

	case "addLoginKey":
		if err := a.requireAuthKeyOrSelf(caller); err != nil {
			return err
		}
		restrictions, err := DecodeRestrictions(args[1].([]byte))
		if err != nil {
			return err
		}
		return st.Keys.AddLoginKey(args[0].(common.Address), restrictions)

	case "removeLoginKey":
		if err := a.requireAuthKeyOrSelf(caller); err != nil {
			return err
		}
		return st.Keys.RemoveLoginKey(args[0].(common.Address))

	case "addFirewallEntry":
		if err := a.requireSelf(caller, ErrRequireSelf); err != nil {
			return err
		}
		target := args[0].(common.Address)
		// The admin surface is only reachable through self-calls.
		if target == st.Address {
			return ErrFirewallTargetsSelf
		}
		return st.Firewall.Add(FirewallEntry{Target: target, Selector: args[1].([4]byte)})

	case "removeFirewallEntry":
		if err := a.requireSelf(caller, ErrRequireSelf); err != nil {
			return err
		}
		return st.Firewall.Remove(FirewallEntry{Target: args[0].(common.Address), Selector: args[1].([4]byte)})

	case "initiateChange":
		if err := a.requireSelf(caller, ErrRequireTimelockContract); err != nil {
			return err
		}
		field := Field(args[0].([32]byte))
		if _, ok := fieldNames[field]; !ok {
			return fmt.Errorf("%w: unknown field %s", ErrTimelockNotAbleToInitiateChange, field)
		}
		change, err := st.Timelock.Initiate(field, args[1].([32]byte), a.clock.Now(), a.cfg.TimelockDelay, a.cfg.TimelockExpireWindow)
		if err != nil {
			return err
		}
		a.logger.Debug("timelock change initiated",
			"account", st.Address.Hex(),
			"field", field.String(),
			"unlock_at", change.UnlockAt,
		)
		return nil

	case "executeChange":
		if err := a.requireSelf(caller, ErrRequireTimelockContract); err != nil {
			return err
		}
		change, err := st.Timelock.Execute(Field(args[0].([32]byte)), a.clock.Now(), a.cfg.TimelockExpireWindow)
		if err != nil {
			return err
		}
		return a.applyChange(change)

	case "cancelChange":
		if err := a.requireSelf(caller, ErrRequireTimelockContract); err != nil {
			return err
		}
		return st.Timelock.Cancel(Field(args[0].([32]byte)))
	}
	return fmt.Errorf("%w: %s", errUnknownAdminCall, method.Name)
}

func (a *Account) applyChange(change PendingChange) error {
	switch change.Field {
	case FieldImplementation:
		impl := common.BytesToAddress(change.Value[12:])
		if a.backend.CodeSize(impl) == 0 {
			return ErrNonContractImplementation
		}
		a.state.Implementation = impl
	case FieldMaxGasPrice:
		a.state.MaxGasPrice = new(big.Int).SetBytes(change.Value[:])
	default:
		return ErrTimelockNotAbleToChange
	}
	a.logger.Debug("timelock change executed",
		"account", a.state.Address.Hex(),
		"field", change.Field.String(),
	)
	return nil
}
