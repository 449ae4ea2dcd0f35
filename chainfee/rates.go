package chainfee

import (
	"fmt"

	"github.com/decred/dcrd/dcrutil/v4"
)

const (
	// FeePerKBFloor is the lowest fee rate in atoms/kB that we should use
	// for estimating transaction fees before signing. It matches the
	// default minimum relay fee of dcrd and dcrwallet.
	FeePerKBFloor AtomPerKByte = 1e4
)

// AtomPerKByte represents a fee rate in atoms/kB.
type AtomPerKByte dcrutil.Amount

// FeeForSize calculates the fee resulting from this fee rate and the given
// size in bytes.
func (s AtomPerKByte) FeeForSize(bytes int64) dcrutil.Amount {
	return dcrutil.Amount(s) * dcrutil.Amount(bytes) / 1000
}

// String returns a human-readable string of the fee rate.
func (s AtomPerKByte) String() string {
	return fmt.Sprintf("%v atoms/kB", int64(s))
}

// NewAtomPerKByte converts a fee rate expressed in DCR/kB, the unit the
// wallet and the command line use, to atoms/kB.
func NewAtomPerKByte(dcrPerKB float64) (AtomPerKByte, error) {
	amt, err := dcrutil.NewAmount(dcrPerKB)
	if err != nil {
		return 0, err
	}
	if amt < 0 {
		return 0, fmt.Errorf("negative fee rate %v DCR/kB", dcrPerKB)
	}
	return AtomPerKByte(amt), nil
}
