// Package coinctl implements coin control: spending the coins of a chosen set
// of addresses, sending any change back to one of them.
package coinctl

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrutil/v4"
	chainjson "github.com/decred/dcrd/rpc/jsonrpc/types/v4"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrd/txscript/v4/stdscript"
	"github.com/decred/dcrd/wire"
	"github.com/decred/dcrspendfrom/chainfee"
	"github.com/decred/dcrspendfrom/rpcwallet"
	"github.com/decred/dcrspendfrom/txsize"
)

const (
	// BaseFee is the smallest amount worth returning as change. It is
	// also the least fee a large or tiny-amount transaction must pay.
	BaseFee dcrutil.Amount = 1e5

	// tinyAmount is the input total below which a transaction must pay at
	// least BaseFee.
	tinyAmount dcrutil.Amount = 1e6

	// DefaultMaxFeeRatio is the default largest fee, as a fraction of the
	// amount sent, that a transaction may pay.
	DefaultMaxFeeRatio = 0.01

	// DefaultUnlockTimeout is the default number of seconds the wallet is
	// unlocked for.
	DefaultUnlockTimeout = 5

	// DefaultUnlockAttempts is the default number of passphrase prompts
	// before giving up on unlocking the wallet.
	DefaultUnlockAttempts = 3

	// DefaultConfTarget is the default confirmation target used to
	// estimate the fee rate.
	DefaultConfTarget = 2

	unlockPrompt = "Wallet is locked; enter passphrase: "
)

// Wallet is the set of wallet operations coin control needs.
type Wallet interface {
	UnspentLister

	Unlocked(ctx context.Context) (bool, error)
	WalletPassphrase(ctx context.Context, passphrase string,
		timeout int64) error
	WalletLock(ctx context.Context) error
	CreateRawTransaction(ctx context.Context,
		inputs []chainjson.TransactionInput,
		amounts map[stdaddr.Address]dcrutil.Amount) (*wire.MsgTx, error)
	SignRawTransaction(ctx context.Context,
		tx *wire.MsgTx) (*wire.MsgTx, bool, error)
	SendRawTransaction(ctx context.Context,
		tx *wire.MsgTx) (*chainhash.Hash, error)
}

// A compile-time assertion that the wallet RPC client can be used by the
// controller.
var _ Wallet = (*rpcwallet.Client)(nil)

// PassphrasePrompter asks the user for the wallet passphrase.
type PassphrasePrompter func(prompt string) (string, error)

// Config holds the dependencies and policy of a Controller.
type Config struct {
	// Wallet is the wallet holding the coins.
	Wallet Wallet

	// Net are the parameters of the network the wallet runs on.
	Net *chaincfg.Params

	// FeeEstimator provides the fee rate when a spend does not set an
	// explicit fee.
	FeeEstimator chainfee.Estimator

	// ConfTarget is the confirmation target the fee rate is estimated
	// for.
	ConfTarget uint32

	// MinConf is the minimum number of confirmations of spent coins.
	MinConf int32

	// MaxFeeRatio is the largest fee, as a fraction of the amount sent,
	// that a transaction may pay.
	MaxFeeRatio float64

	// UnlockTimeout is the number of seconds the wallet is unlocked for.
	UnlockTimeout int64

	// UnlockAttempts is the number of passphrase prompts before giving up.
	UnlockAttempts int

	// Prompt reads the wallet passphrase.
	Prompt PassphrasePrompter

	// Out receives user facing messages, such as a passphrase rejection.
	Out io.Writer
}

// Controller spends the coins of selected addresses.
type Controller struct {
	cfg Config
}

// NewController returns a new controller. Zero policy values are replaced by
// their defaults.
func NewController(cfg *Config) *Controller {
	c := *cfg
	if c.MaxFeeRatio == 0 {
		c.MaxFeeRatio = DefaultMaxFeeRatio
	}
	if c.UnlockTimeout == 0 {
		c.UnlockTimeout = DefaultUnlockTimeout
	}
	if c.UnlockAttempts == 0 {
		c.UnlockAttempts = DefaultUnlockAttempts
	}
	if c.ConfTarget == 0 {
		c.ConfTarget = DefaultConfTarget
	}
	if c.Out == nil {
		c.Out = io.Discard
	}
	return &Controller{cfg: c}
}

// ListAvailable lists the spendable coins of the wallet grouped by address.
func (c *Controller) ListAvailable(ctx context.Context) ([]AddressSummary, error) {
	return ListAvailable(ctx, c.cfg.Wallet, c.cfg.MinConf, c.cfg.Net)
}

// SpendRequest describes a payment from a set of addresses.
type SpendRequest struct {
	// From are the source addresses. Their coins are spent in the given
	// order and change goes back to the last one.
	From []string

	// To is the destination address.
	To string

	// Amount is the value paid to To.
	Amount dcrutil.Amount

	// Fee is the fee to pay. When nil the fee is derived from the fee
	// estimator and the size of the transaction.
	Fee *dcrutil.Amount

	// DryRun skips broadcasting the signed transaction.
	DryRun bool
}

// CreatedTx is a signed transaction built by CreateTx.
type CreatedTx struct {
	Tx *wire.MsgTx

	// Inputs are the coins spent by Tx.
	Inputs []Coin

	// Fee is the fee paid by Tx, including any change too small to be
	// returned.
	Fee dcrutil.Amount

	// Change is the value returned to the change address, if any.
	Change dcrutil.Amount
}

// inputValues maps the outpoints spent by the transaction to their values.
func (t *CreatedTx) inputValues() map[wire.OutPoint]dcrutil.Amount {
	values := make(map[wire.OutPoint]dcrutil.Amount, len(t.Inputs))
	for _, c := range t.Inputs {
		values[c.OutPoint] = c.Value
	}
	return values
}

// potentialInputs returns the coins of the source addresses, in the order the
// addresses are given.
func potentialInputs(summaries []AddressSummary, from []string) []Coin {
	byAddr := make(map[string]*AddressSummary, len(summaries))
	for i := range summaries {
		byAddr[summaries[i].Address] = &summaries[i]
	}

	var coins []Coin
	seen := make(map[string]struct{}, len(from))
	for _, addr := range from {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}

		s, ok := byAddr[addr]
		if !ok {
			log.Warnf("Address %s has no spendable outputs", addr)
			continue
		}
		coins = append(coins, s.Coins...)
	}
	return coins
}

// sigScriptSize returns the estimated size of the signature script redeeming
// coin. P2SH coins without a known redeem script are sized as P2PKH.
func sigScriptSize(coin *Coin) int64 {
	if coin.ScriptType != stdscript.STScriptHash ||
		len(coin.RedeemScript) == 0 {

		return txsize.RedeemP2PKHSigScriptSize
	}

	details := stdscript.ExtractMultiSigScriptDetailsV0(
		coin.RedeemScript, false,
	)
	if details.Valid {
		return txsize.RedeemP2SHSigScriptSize(
			int(details.RequiredSigs), len(coin.RedeemScript),
		)
	}

	// Other redeem scripts are assumed to need a signature and a public
	// key, like P2PKH.
	return txsize.RedeemP2PKHSigScriptSize +
		txsize.RedeemP2SHSigScriptSize(0, len(coin.RedeemScript))
}

// estimateSize returns the size of a transaction spending coins to an output
// with the given script, plus a change output when withChange is set.
func estimateSize(coins []Coin, toScriptLen int, changeScriptLen int,
	withChange bool) int64 {

	var est txsize.TxSizeEstimator
	for i := range coins {
		est.AddCustomInput(sigScriptSize(&coins[i]))
	}
	est.AddOutput(int64(toScriptLen))
	if withChange {
		est.AddOutput(int64(changeScriptLen))
	}
	return est.Size()
}

// coinSelection is the outcome of selecting inputs for a payment.
type coinSelection struct {
	coins  []Coin
	fee    dcrutil.Amount
	change dcrutil.Amount
}

// selectWithFee selects coins paying amount plus an explicit fee.
func selectWithFee(coins []Coin, amount, fee dcrutil.Amount) (*coinSelection,
	error) {

	available := totalValue(coins)
	needed := amount + fee
	if available < needed {
		return nil, &ErrInsufficientFunds{
			Available: available,
			Needed:    needed,
		}
	}

	selected, change := SelectCoins(needed, coins)
	if change <= BaseFee {
		fee += change
		change = 0
	}
	return &coinSelection{coins: selected, fee: fee, change: change}, nil
}

// selectWithFeeRate selects coins paying amount plus the fee of the resulting
// transaction at feeRate. Coins are selected again whenever the fee of the
// current selection is not covered.
func selectWithFeeRate(coins []Coin, amount dcrutil.Amount,
	feeRate chainfee.AtomPerKByte, toScriptLen, changeScriptLen int,
	mergedChange bool) (*coinSelection, error) {

	available := totalValue(coins)

	var fee dcrutil.Amount
	for {
		needed := amount + fee
		if available < needed {
			return nil, &ErrInsufficientFunds{
				Available: available,
				Needed:    needed,
			}
		}

		selected, _ := SelectCoins(needed, coins)
		have := totalValue(selected)

		// A separate change output is only added when the change left
		// after paying for it is worth returning.
		if !mergedChange {
			feeWithChange := feeRate.FeeForSize(estimateSize(
				selected, toScriptLen, changeScriptLen, true,
			))
			change := have - amount - feeWithChange
			if change > BaseFee {
				log.Tracef("Selected %d coins worth %v for "+
					"amount %v, fee %v and change %v",
					len(selected), have, amount,
					feeWithChange, change)

				return &coinSelection{
					coins:  selected,
					fee:    feeWithChange,
					change: change,
				}, nil
			}
		}

		// Without a change output, whatever is left over the required
		// fee is paid as fee unless it can be merged into the payment.
		requiredFee := feeRate.FeeForSize(estimateSize(
			selected, toScriptLen, changeScriptLen, false,
		))
		leftover := have - amount - requiredFee

		log.Tracef("Selected %d coins worth %v for amount %v, "+
			"required fee %v without change", len(selected), have,
			amount, requiredFee)

		switch {
		case leftover < 0:
			fee = requiredFee
			continue

		case mergedChange && leftover > BaseFee:
			return &coinSelection{
				coins:  selected,
				fee:    requiredFee,
				change: leftover,
			}, nil
		}

		return &coinSelection{
			coins: selected,
			fee:   requiredFee + leftover,
		}, nil
	}
}

// CreateTx builds and signs a transaction paying req.Amount to req.To with
// the coins of req.From. Change above BaseFee goes back to the last source
// address.
func (c *Controller) CreateTx(ctx context.Context,
	req *SpendRequest) (*CreatedTx, error) {

	if len(req.From) == 0 {
		return nil, errors.New("no source addresses given")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("invalid amount %v", req.Amount)
	}
	if req.Fee != nil && *req.Fee < 0 {
		return nil, fmt.Errorf("invalid fee %v", *req.Fee)
	}

	toAddr, err := stdaddr.DecodeAddress(req.To, c.cfg.Net)
	if err != nil {
		return nil, fmt.Errorf("invalid destination address %q: %w",
			req.To, err)
	}
	changeAddr, err := stdaddr.DecodeAddress(req.From[len(req.From)-1],
		c.cfg.Net)
	if err != nil {
		return nil, fmt.Errorf("invalid change address %q: %w",
			req.From[len(req.From)-1], err)
	}

	summaries, err := c.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	coins := potentialInputs(summaries, req.From)
	if len(coins) == 0 {
		return nil, ErrNoCoins
	}

	mergedChange := toAddr.String() == changeAddr.String()

	var sel *coinSelection
	if req.Fee != nil {
		sel, err = selectWithFee(coins, req.Amount, *req.Fee)
	} else {
		var feeRate chainfee.AtomPerKByte
		feeRate, err = c.cfg.FeeEstimator.EstimateFeePerKB(
			c.cfg.ConfTarget,
		)
		if err != nil {
			return nil, fmt.Errorf("unable to estimate fee: %w", err)
		}
		log.Debugf("Using fee rate of %s", feeRate)

		_, toScript := toAddr.PaymentScript()
		_, changeScript := changeAddr.PaymentScript()
		sel, err = selectWithFeeRate(
			coins, req.Amount, feeRate, len(toScript),
			len(changeScript), mergedChange,
		)
	}
	if err != nil {
		return nil, err
	}

	// A change output to the destination is merged into the payment.
	amounts := map[stdaddr.Address]dcrutil.Amount{toAddr: req.Amount}
	switch {
	case sel.change == 0:
	case mergedChange:
		amounts[toAddr] += sel.change
	default:
		amounts[changeAddr] = sel.change
	}

	inputs := make([]chainjson.TransactionInput, 0, len(sel.coins))
	for _, coin := range sel.coins {
		inputs = append(inputs, chainjson.TransactionInput{
			Amount: coin.Value.ToCoin(),
			Txid:   coin.OutPoint.Hash.String(),
			Vout:   coin.OutPoint.Index,
			Tree:   coin.OutPoint.Tree,
		})
	}

	log.Infof("Spending %d coins worth %v to pay %v to %s with fee %v "+
		"and change %v", len(sel.coins), totalValue(sel.coins),
		req.Amount, req.To, sel.fee, sel.change)

	tx, err := c.cfg.Wallet.CreateRawTransaction(ctx, inputs, amounts)
	if err != nil {
		return nil, err
	}
	signed, complete, err := c.cfg.Wallet.SignRawTransaction(ctx, tx)
	if rpcwallet.IsUnlockNeeded(err) {
		return nil, fmt.Errorf("%w: %v", ErrWalletLocked, err)
	}
	if err != nil {
		return nil, err
	}
	if !complete {
		return nil, ErrSigningIncomplete
	}

	log.Debugf("Signed transaction %v: %v", signed.TxHash(),
		newLogClosure(func() string {
			return spew.Sdump(signed)
		}))

	return &CreatedTx{
		Tx:     signed,
		Inputs: sel.coins,
		Fee:    sel.fee,
		Change: sel.change,
	}, nil
}

// SanityCheckFee verifies the fee paid by tx. Input values are looked up in
// inputValues, falling back to the value committed in the input itself.
func SanityCheckFee(tx *wire.MsgTx, inputValues map[wire.OutPoint]dcrutil.Amount,
	maxFee dcrutil.Amount) error {

	var totalIn, totalOut dcrutil.Amount
	for _, in := range tx.TxIn {
		value, ok := inputValues[in.PreviousOutPoint]
		if !ok {
			value = dcrutil.Amount(in.ValueIn)
		}
		totalIn += value
	}
	for _, out := range tx.TxOut {
		totalOut += dcrutil.Amount(out.Value)
	}

	fee := totalIn - totalOut
	switch {
	case fee < 0:
		return &FeeError{Kind: FeeNegative, Fee: fee}

	case fee > maxFee:
		return &FeeError{Kind: FeeUnreasonable, Fee: fee}
	}

	// Transactions of more than one kB and transactions moving tiny
	// amounts must pay the base fee.
	kb := tx.SerializeSize() / 1000
	if kb > 1 && fee < BaseFee {
		return &FeeError{Kind: FeeMissingLargeTx, Fee: fee}
	}
	if totalIn < tinyAmount && fee < BaseFee {
		return &FeeError{Kind: FeeMissingTinyAmount, Fee: fee}
	}

	return nil
}

// MaxFee returns the largest fee allowed when sending amount.
func (c *Controller) MaxFee(amount dcrutil.Amount) dcrutil.Amount {
	return dcrutil.Amount(float64(amount) * c.cfg.MaxFeeRatio)
}

// UnlockWallet unlocks the wallet if it is locked, prompting for the
// passphrase until it is accepted or the allowed attempts run out. It returns
// true if the wallet was unlocked by this call.
func (c *Controller) UnlockWallet(ctx context.Context) (bool, error) {
	unlocked, err := c.cfg.Wallet.Unlocked(ctx)
	if err != nil {
		return false, err
	}
	if unlocked {
		return false, nil
	}
	if c.cfg.Prompt == nil {
		return false, ErrWalletLocked
	}

	for i := 0; i < c.cfg.UnlockAttempts; i++ {
		pass, err := c.cfg.Prompt(unlockPrompt)
		if err != nil {
			return false, err
		}

		err = c.cfg.Wallet.WalletPassphrase(ctx, pass,
			c.cfg.UnlockTimeout)
		switch {
		case err == nil:
			log.Debugf("Wallet unlocked for %d seconds",
				c.cfg.UnlockTimeout)
			return true, nil

		case rpcwallet.IsWrongPassphrase(err):
			fmt.Fprintln(c.cfg.Out, "Wrong passphrase")

		default:
			return false, err
		}
	}

	return false, ErrWalletLocked
}

// SpendResult is the outcome of a spend.
type SpendResult struct {
	*CreatedTx

	// TxHash is the hash of the broadcast transaction. It is nil on a dry
	// run.
	TxHash *chainhash.Hash

	// Hex is the serialized signed transaction.
	Hex string
}

// Spend unlocks the wallet when needed, builds and signs the transaction
// described by req and checks its fee. Unless req.DryRun is set, the
// transaction is then broadcast. A wallet unlocked by Spend is locked again
// before returning.
func (c *Controller) Spend(ctx context.Context,
	req *SpendRequest) (*SpendResult, error) {

	unlocked, err := c.UnlockWallet(ctx)
	if err != nil {
		return nil, err
	}
	if unlocked {
		defer func() {
			if err := c.cfg.Wallet.WalletLock(ctx); err != nil {
				log.Errorf("Unable to lock wallet: %v", err)
			}
		}()
	}

	created, err := c.CreateTx(ctx, req)
	if err != nil {
		return nil, err
	}

	err = SanityCheckFee(created.Tx, created.inputValues(),
		c.MaxFee(req.Amount))
	if err != nil {
		return nil, err
	}

	txHex, err := rpcwallet.EncodeTx(created.Tx)
	if err != nil {
		return nil, err
	}

	res := &SpendResult{CreatedTx: created, Hex: txHex}
	if req.DryRun {
		log.Infof("Dry run, not broadcasting %v", created.Tx.TxHash())
		return res, nil
	}

	res.TxHash, err = c.cfg.Wallet.SendRawTransaction(ctx, created.Tx)
	if err != nil {
		return nil, err
	}
	log.Infof("Broadcast transaction %v", res.TxHash)

	return res, nil
}
