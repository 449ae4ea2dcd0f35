package coinctl

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	walletjson "decred.org/dcrwallet/v4/rpc/jsonrpc/types"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4/stdscript"
	"github.com/decred/dcrd/wire"
	"golang.org/x/exp/slices"
)

// Coin is a spendable output owned by the wallet.
type Coin struct {
	OutPoint      wire.OutPoint
	Address       string
	Account       string
	Value         dcrutil.Amount
	PkScript      []byte
	ScriptType    stdscript.ScriptType
	Confirmations int64

	// RedeemScript is the script committed to by a P2SH coin, when the
	// wallet knows it.
	RedeemScript []byte
}

// AddressSummary groups the spendable coins paying to a single address.
type AddressSummary struct {
	Address string
	Account string
	Total   dcrutil.Amount
	Coins   []Coin
}

// UnspentLister lists the unspent outputs of a wallet.
type UnspentLister interface {
	ListUnspent(ctx context.Context,
		minConf int32) ([]walletjson.ListUnspentResult, error)
}

// coinFromUnspent converts a listunspent entry to a Coin. A nil coin without
// error is returned for outputs that are not spent by this tool.
func coinFromUnspent(u *walletjson.ListUnspentResult,
	params *chaincfg.Params) (*Coin, error) {

	if u.Tree != wire.TxTreeRegular {
		log.Tracef("Skipping %s:%d from tree %d", u.TxID, u.Vout, u.Tree)
		return nil, nil
	}
	if !u.Spendable {
		log.Tracef("Skipping unspendable %s:%d", u.TxID, u.Vout)
		return nil, nil
	}

	pkScript, err := hex.DecodeString(u.ScriptPubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid script for %s:%d: %w", u.TxID,
			u.Vout, err)
	}

	scriptType, addrs := stdscript.ExtractAddrs(0, pkScript, params)
	switch scriptType {
	case stdscript.STPubKeyHashEcdsaSecp256k1, stdscript.STScriptHash:
	default:
		log.Debugf("Skipping %s:%d with script type %v", u.TxID,
			u.Vout, scriptType)
		return nil, nil
	}

	var redeemScript []byte
	if scriptType == stdscript.STScriptHash && u.RedeemScript != "" {
		redeemScript, err = hex.DecodeString(u.RedeemScript)
		if err != nil {
			return nil, fmt.Errorf("invalid redeem script for "+
				"%s:%d: %w", u.TxID, u.Vout, err)
		}
	}

	address := u.Address
	if address == "" && len(addrs) > 0 {
		address = addrs[0].String()
	}

	hash, err := chainhash.NewHashFromStr(u.TxID)
	if err != nil {
		return nil, fmt.Errorf("invalid txid %q: %w", u.TxID, err)
	}
	value, err := dcrutil.NewAmount(u.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount for %s:%d: %w", u.TxID,
			u.Vout, err)
	}

	return &Coin{
		OutPoint:      *wire.NewOutPoint(hash, u.Vout, u.Tree),
		Address:       address,
		Account:       u.Account,
		Value:         value,
		PkScript:      pkScript,
		ScriptType:    scriptType,
		Confirmations: u.Confirmations,
		RedeemScript:  redeemScript,
	}, nil
}

// ListAvailable groups the wallet's spendable P2PKH and P2SH outputs with at
// least minConf confirmations by address. The summaries are sorted by address
// and the coins of each address keep the order reported by the wallet.
func ListAvailable(ctx context.Context, w UnspentLister, minConf int32,
	params *chaincfg.Params) ([]AddressSummary, error) {

	unspent, err := w.ListUnspent(ctx, minConf)
	if err != nil {
		return nil, err
	}

	byAddr := make(map[string]*AddressSummary)
	for i := range unspent {
		coin, err := coinFromUnspent(&unspent[i], params)
		if err != nil {
			return nil, err
		}
		if coin == nil {
			continue
		}

		s, ok := byAddr[coin.Address]
		if !ok {
			s = &AddressSummary{
				Address: coin.Address,
				Account: coin.Account,
			}
			byAddr[coin.Address] = s
		}
		s.Total += coin.Value
		s.Coins = append(s.Coins, *coin)
	}

	summaries := make([]AddressSummary, 0, len(byAddr))
	for _, s := range byAddr {
		summaries = append(summaries, *s)
	}
	slices.SortFunc(summaries, func(a, b AddressSummary) int {
		return strings.Compare(a.Address, b.Address)
	})

	log.Debugf("Found %d addresses with spendable outputs out of %d "+
		"unspent outputs", len(summaries), len(unspent))

	return summaries, nil
}

// SelectCoins greedily selects coins, in the given order, until their total
// reaches needed. It returns the selection and the selected total minus
// needed, which is negative when the coins are not enough.
func SelectCoins(needed dcrutil.Amount, coins []Coin) ([]Coin, dcrutil.Amount) {
	var (
		have     dcrutil.Amount
		selected []Coin
	)
	for _, coin := range coins {
		if have >= needed {
			break
		}
		selected = append(selected, coin)
		have += coin.Value
	}
	return selected, have - needed
}

// totalValue returns the sum of the values of coins.
func totalValue(coins []Coin) dcrutil.Amount {
	var total dcrutil.Amount
	for _, c := range coins {
		total += c.Value
	}
	return total
}
