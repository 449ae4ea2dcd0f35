// Package rpcwallet implements the subset of the dcrwallet JSON-RPC API needed
// to inspect, build, sign and broadcast transactions spending specific
// addresses.
package rpcwallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	walletjson "decred.org/dcrwallet/v4/rpc/jsonrpc/types"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrutil/v4"
	chainjson "github.com/decred/dcrd/rpc/jsonrpc/types/v4"
	"github.com/decred/dcrd/rpcclient/v8"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrd/wire"
)

// Caller performs a single JSON-RPC call. The result, when non-nil, receives
// the JSON decoded result of the call.
type Caller interface {
	Call(ctx context.Context, method string, res interface{},
		args ...interface{}) error
}

// Config holds the parameters needed to connect to a running dcrwallet.
type Config struct {
	// Host is the host:port of the wallet JSON-RPC server.
	Host string

	// User and Pass are the JSON-RPC credentials.
	User string
	Pass string

	// Certificates is the PEM encoded certificate chain of the wallet RPC
	// server.
	Certificates []byte

	// DisableTLS connects over plain HTTP.
	DisableTLS bool

	// Net are the parameters of the network the wallet is expected to run
	// on.
	Net *chaincfg.Params
}

// rawCaller adapts an rpcclient.Client to the Caller interface.
type rawCaller struct {
	c *rpcclient.Client
}

func (r rawCaller) Call(ctx context.Context, method string, res interface{},
	args ...interface{}) error {

	params := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return fmt.Errorf("unable to marshal %s param: %w",
				method, err)
		}
		params = append(params, b)
	}

	raw, err := r.c.RawRequest(ctx, method, params)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	return json.Unmarshal(raw, res)
}

// Client is a dcrwallet JSON-RPC client.
type Client struct {
	caller Caller
	net    *chaincfg.Params

	// shutdown, when set, releases the resources of the underlying
	// transport.
	shutdown func()
}

// New creates a new client connected to the wallet described by cfg. The
// connection uses HTTP POST requests, so no long lived websocket is kept open.
func New(cfg *Config) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		Certificates: cfg.Certificates,
		DisableTLS:   cfg.DisableTLS,
		HTTPPostMode: true,
	}

	log.Debugf("Connecting to wallet at %s (tls=%v)", cfg.Host,
		!cfg.DisableTLS)

	rpcClient, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create wallet rpc client: %w",
			err)
	}

	c := NewClient(rawCaller{c: rpcClient}, cfg.Net)
	c.shutdown = rpcClient.Shutdown
	return c, nil
}

// NewClient creates a client that performs its calls through the given
// Caller.
func NewClient(caller Caller, net *chaincfg.Params) *Client {
	return &Client{
		caller: caller,
		net:    net,
	}
}

// Shutdown releases the resources of the underlying connection.
func (c *Client) Shutdown() {
	if c.shutdown != nil {
		c.shutdown()
	}
}

// ListUnspent returns the wallet's unspent outputs with at least minConf
// confirmations.
func (c *Client) ListUnspent(ctx context.Context,
	minConf int32) ([]walletjson.ListUnspentResult, error) {

	var res []walletjson.ListUnspentResult
	if err := c.caller.Call(ctx, "listunspent", &res, minConf); err != nil {
		return nil, fmt.Errorf("listunspent: %w", err)
	}
	return res, nil
}

// WalletInfo returns the wallet state.
func (c *Client) WalletInfo(ctx context.Context) (*walletjson.WalletInfoResult, error) {
	var res walletjson.WalletInfoResult
	if err := c.caller.Call(ctx, "walletinfo", &res); err != nil {
		return nil, fmt.Errorf("walletinfo: %w", err)
	}
	return &res, nil
}

// Unlocked returns whether the wallet is currently unlocked.
func (c *Client) Unlocked(ctx context.Context) (bool, error) {
	info, err := c.WalletInfo(ctx)
	if err != nil {
		return false, err
	}
	return info.Unlocked, nil
}

// TxFee returns the fee rate, in DCR/kB, the wallet is configured to pay.
func (c *Client) TxFee(ctx context.Context) (float64, error) {
	info, err := c.WalletInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.TxFee, nil
}

// WalletPassphrase unlocks the wallet for timeout seconds.
func (c *Client) WalletPassphrase(ctx context.Context, passphrase string,
	timeout int64) error {

	err := c.caller.Call(ctx, "walletpassphrase", nil, passphrase, timeout)
	if err != nil {
		return fmt.Errorf("walletpassphrase: %w", err)
	}
	return nil
}

// WalletLock locks the wallet.
func (c *Client) WalletLock(ctx context.Context) error {
	if err := c.caller.Call(ctx, "walletlock", nil); err != nil {
		return fmt.Errorf("walletlock: %w", err)
	}
	return nil
}

// CreateRawTransaction asks the wallet to build an unsigned transaction
// spending the given inputs to the given outputs.
func (c *Client) CreateRawTransaction(ctx context.Context,
	inputs []chainjson.TransactionInput,
	amounts map[stdaddr.Address]dcrutil.Amount) (*wire.MsgTx, error) {

	amts := make(map[string]float64, len(amounts))
	for addr, amt := range amounts {
		amts[addr.String()] = amt.ToCoin()
	}

	var txHex string
	err := c.caller.Call(ctx, "createrawtransaction", &txHex, inputs, amts)
	if err != nil {
		return nil, fmt.Errorf("createrawtransaction: %w", err)
	}

	return decodeTx(txHex)
}

// SignRawTransaction asks the wallet to sign every input of tx it can. The
// returned bool reports whether the transaction is fully signed.
func (c *Client) SignRawTransaction(ctx context.Context,
	tx *wire.MsgTx) (*wire.MsgTx, bool, error) {

	txHex, err := EncodeTx(tx)
	if err != nil {
		return nil, false, err
	}

	var res walletjson.SignRawTransactionResult
	err = c.caller.Call(ctx, "signrawtransaction", &res, txHex)
	if err != nil {
		return nil, false, fmt.Errorf("signrawtransaction: %w", err)
	}
	for _, e := range res.Errors {
		log.Debugf("Signing input %s:%d failed: %s", e.TxID, e.Vout,
			e.Error)
	}

	signed, err := decodeTx(res.Hex)
	if err != nil {
		return nil, false, err
	}
	return signed, res.Complete, nil
}

// SendRawTransaction broadcasts tx through the wallet and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context,
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	txHex, err := EncodeTx(tx)
	if err != nil {
		return nil, err
	}

	var txid string
	err = c.caller.Call(ctx, "sendrawtransaction", &txid, txHex, false)
	if err != nil {
		return nil, fmt.Errorf("sendrawtransaction: %w", err)
	}

	return chainhash.NewHashFromStr(txid)
}

// GetCurrentNet returns the network the wallet is running on.
func (c *Client) GetCurrentNet(ctx context.Context) (wire.CurrencyNet, error) {
	var net uint32
	if err := c.caller.Call(ctx, "getcurrentnet", &net); err != nil {
		return 0, fmt.Errorf("getcurrentnet: %w", err)
	}
	return wire.CurrencyNet(net), nil
}

// CheckNetwork verifies the wallet runs on the network the client was
// configured for.
func (c *Client) CheckNetwork(ctx context.Context) error {
	net, err := c.GetCurrentNet(ctx)
	if err != nil {
		return err
	}
	if net != c.net.Net {
		return &NetworkMismatchError{Want: c.net.Net, Got: net}
	}

	log.Debugf("Wallet is running on %s", net)
	return nil
}

// EncodeTx returns the hex encoded serialization of tx.
func EncodeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func decodeTx(txHex string) (*wire.MsgTx, error) {
	b, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction hex: %w", err)
	}

	tx := wire.NewMsgTx()
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return tx, nil
}
