package coinctl

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	walletjson "decred.org/dcrwallet/v4/rpc/jsonrpc/types"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrjson/v4"
	"github.com/decred/dcrd/dcrutil/v4"
	chainjson "github.com/decred/dcrd/rpc/jsonrpc/types/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrd/wire"
	"github.com/decred/dcrspendfrom/txsize"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"
)

var testParams = chaincfg.SimNetParams()

// testAddr returns a P2PKH simnet address derived from b.
func testAddr(t *testing.T, b byte) stdaddr.Address {
	t.Helper()

	hash := make([]byte, 20)
	hash[0] = b
	addr, err := stdaddr.NewAddressPubKeyHashEcdsaSecp256k1V0(hash,
		testParams)
	require.NoError(t, err)
	return addr
}

// testP2SHAddr returns a P2SH simnet address derived from b.
func testP2SHAddr(t *testing.T, b byte) stdaddr.Address {
	t.Helper()

	hash := make([]byte, 20)
	hash[0] = b
	addr, err := stdaddr.NewAddressScriptHashV0FromHash(hash, testParams)
	require.NoError(t, err)
	return addr
}

// unspent returns a listunspent entry paying amount to addr.
func unspent(addr stdaddr.Address, txid byte, vout uint32,
	amount float64) walletjson.ListUnspentResult {

	_, script := addr.PaymentScript()
	return walletjson.ListUnspentResult{
		TxID:          chainhash.Hash{txid}.String(),
		Vout:          vout,
		Tree:          wire.TxTreeRegular,
		Address:       addr.String(),
		Account:       "default",
		ScriptPubKey:  hex.EncodeToString(script),
		Amount:        amount,
		Confirmations: 6,
		Spendable:     true,
	}
}

// testMultiSigScript returns a 2-of-3 multisig redeem script.
func testMultiSigScript(t *testing.T) []byte {
	t.Helper()

	b := txscript.NewScriptBuilder().AddOp(txscript.OP_2)
	for i := byte(1); i <= 3; i++ {
		pubKey := make([]byte, 33)
		pubKey[0] = 0x02
		pubKey[1] = i
		b.AddData(pubKey)
	}
	script, err := b.AddOp(txscript.OP_3).
		AddOp(txscript.OP_CHECKMULTISIG).Script()
	require.NoError(t, err)
	return script
}

// p2shUnspent returns a listunspent entry paying amount to the P2SH address
// of redeemScript, reporting the redeem script when withRedeem is set.
func p2shUnspent(t *testing.T, redeemScript []byte, withRedeem bool,
	txid byte, amount float64) walletjson.ListUnspentResult {

	t.Helper()

	addr, err := stdaddr.NewAddressScriptHashV0(redeemScript, testParams)
	require.NoError(t, err)

	u := unspent(addr, txid, 0, amount)
	if withRedeem {
		u.RedeemScript = hex.EncodeToString(redeemScript)
	}
	return u
}

// fakeWallet is an in-memory Wallet.
type fakeWallet struct {
	unspent    []walletjson.ListUnspentResult
	unlocked   bool
	passphrase string
	incomplete bool
	signErr    error

	minConf        int32
	unlockTimeout  int64
	unlockCalls    int
	lockCalls      int
	createdInputs  []chainjson.TransactionInput
	createdAmounts map[string]dcrutil.Amount
	sent           []*wire.MsgTx
}

func (f *fakeWallet) ListUnspent(_ context.Context,
	minConf int32) ([]walletjson.ListUnspentResult, error) {

	f.minConf = minConf
	return f.unspent, nil
}

func (f *fakeWallet) Unlocked(context.Context) (bool, error) {
	return f.unlocked, nil
}

func (f *fakeWallet) WalletPassphrase(_ context.Context, passphrase string,
	timeout int64) error {

	f.unlockCalls++
	f.unlockTimeout = timeout
	if passphrase != f.passphrase {
		return &dcrjson.RPCError{
			Code:    dcrjson.ErrRPCWalletPassphraseIncorrect,
			Message: "invalid passphrase for master private key",
		}
	}
	f.unlocked = true
	return nil
}

func (f *fakeWallet) WalletLock(context.Context) error {
	f.lockCalls++
	f.unlocked = false
	return nil
}

func (f *fakeWallet) CreateRawTransaction(_ context.Context,
	inputs []chainjson.TransactionInput,
	amounts map[stdaddr.Address]dcrutil.Amount) (*wire.MsgTx, error) {

	f.createdInputs = inputs
	f.createdAmounts = make(map[string]dcrutil.Amount, len(amounts))

	tx := wire.NewMsgTx()
	for _, in := range inputs {
		hash, err := chainhash.NewHashFromStr(in.Txid)
		if err != nil {
			return nil, err
		}
		amt, err := dcrutil.NewAmount(in.Amount)
		if err != nil {
			return nil, err
		}
		prevOut := wire.NewOutPoint(hash, in.Vout, in.Tree)
		tx.AddTxIn(wire.NewTxIn(prevOut, int64(amt), nil))
	}

	addrs := make([]stdaddr.Address, 0, len(amounts))
	for addr, amt := range amounts {
		f.createdAmounts[addr.String()] = amt
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b stdaddr.Address) int {
		return strings.Compare(a.String(), b.String())
	})
	for _, addr := range addrs {
		_, script := addr.PaymentScript()
		tx.AddTxOut(wire.NewTxOut(int64(amounts[addr]), script))
	}

	return tx, nil
}

func (f *fakeWallet) SignRawTransaction(_ context.Context,
	tx *wire.MsgTx) (*wire.MsgTx, bool, error) {

	if f.signErr != nil {
		return nil, false, f.signErr
	}

	signed := tx.Copy()
	for _, in := range signed.TxIn {
		in.SignatureScript = make([]byte, txsize.RedeemP2PKHSigScriptSize)
	}
	return signed, !f.incomplete, nil
}

func (f *fakeWallet) SendRawTransaction(_ context.Context,
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	f.sent = append(f.sent, tx)
	hash := tx.TxHash()
	return &hash, nil
}

var _ Wallet = (*fakeWallet)(nil)
