package netparams

import (
	"fmt"
	"strings"

	"github.com/decred/dcrd/chaincfg/v3"
)

// DecredNetParams couples the chain parameters of a network with the
// corresponding JSON-RPC port of a dcrwallet running on that network.
type DecredNetParams struct {
	*chaincfg.Params

	// WalletRPCPort is the default dcrwallet JSON-RPC port.
	WalletRPCPort string
}

// MainNetParams contains parameters specific to the current Decred mainnet.
var MainNetParams = DecredNetParams{
	Params:        chaincfg.MainNetParams(),
	WalletRPCPort: "9110",
}

// TestNetParams contains parameters specific to the 3rd version of the test
// network.
var TestNetParams = DecredNetParams{
	Params:        chaincfg.TestNet3Params(),
	WalletRPCPort: "19110",
}

// SimNetParams contains parameters specific to the simulation test network.
var SimNetParams = DecredNetParams{
	Params:        chaincfg.SimNetParams(),
	WalletRPCPort: "19557",
}

// ByName returns the network parameters for the given network name.
func ByName(name string) (*DecredNetParams, error) {
	switch strings.ToLower(name) {
	case "mainnet":
		return &MainNetParams, nil
	case "testnet", "testnet3":
		return &TestNetParams, nil
	case "simnet":
		return &SimNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network: %v", name)
	}
}
