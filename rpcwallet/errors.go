package rpcwallet

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrjson/v4"
	"github.com/decred/dcrd/wire"
)

// IsRPCError returns true if err is, or wraps, a JSON-RPC error returned by the
// wallet with the given code.
func IsRPCError(err error, code dcrjson.RPCErrorCode) bool {
	var rpcErr *dcrjson.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == code
}

// IsWrongPassphrase returns true if the wallet rejected an unlock attempt
// because of an incorrect passphrase.
func IsWrongPassphrase(err error) bool {
	return IsRPCError(err, dcrjson.ErrRPCWalletPassphraseIncorrect)
}

// IsUnlockNeeded returns true if the wallet refused a call because it is
// locked.
func IsUnlockNeeded(err error) bool {
	return IsRPCError(err, dcrjson.ErrRPCWalletUnlockNeeded)
}

// NetworkMismatchError is returned by CheckNetwork when the wallet runs on a
// different network than the one the client was configured for.
type NetworkMismatchError struct {
	Want wire.CurrencyNet
	Got  wire.CurrencyNet
}

func (e *NetworkMismatchError) Error() string {
	return fmt.Sprintf("wallet is running on %s, expected %s", e.Got,
		e.Want)
}
