// Package dcrspendfrom wires the configuration of the coin control tool to a
// wallet connection, a fee estimator and a coin controller.
package dcrspendfrom

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/decred/dcrspendfrom/chainfee"
	"github.com/decred/dcrspendfrom/coinctl"
	"github.com/decred/dcrspendfrom/rpcwallet"
)

// connectTimeout bounds the initial exchange with the wallet.
const connectTimeout = 30 * time.Second

// Connect creates a client for the wallet described by cfg and checks that the
// wallet runs on the configured network.
func Connect(ctx context.Context, cfg *Config) (*rpcwallet.Client, error) {
	rpcCfg, err := cfg.WalletRPCConfig()
	if err != nil {
		return nil, err
	}

	client, err := rpcwallet.New(rpcCfg)
	if err != nil {
		return nil, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.CheckNetwork(checkCtx); err != nil {
		client.Shutdown()
		return nil, fmt.Errorf("unable to use wallet at %s: %w",
			cfg.RPCServer, err)
	}

	spndLog.Debugf("Connected to wallet at %s on %s", cfg.RPCServer,
		cfg.ActiveNetParams.Name)

	return client, nil
}

// NewFeeEstimator returns the fee estimator selected by cfg: a static rate
// when --feerate is set, a web API when --feeurl is set and the wallet's own
// fee rate otherwise. The returned estimator is started.
func NewFeeEstimator(ctx context.Context, cfg *Config,
	walletFee chainfee.WalletFeeFetcher) (chainfee.Estimator, error) {

	var est chainfee.Estimator
	switch {
	case cfg.FeeRate > 0:
		feeRate, err := chainfee.NewAtomPerKByte(cfg.FeeRate)
		if err != nil {
			return nil, err
		}
		spndLog.Debugf("Using static fee rate of %s", feeRate)
		est = chainfee.NewStaticEstimator(feeRate, chainfee.FeePerKBFloor)

	case cfg.FeeURL != "":
		spndLog.Debugf("Using fee estimates from %s", cfg.FeeURL)
		est = chainfee.NewWebAPIEstimator(
			chainfee.SparseConfFeeSource{URL: cfg.FeeURL},
		)

	default:
		est = chainfee.NewWalletEstimator(
			ctx, walletFee, chainfee.FeePerKBFloor,
		)
	}

	if err := est.Start(); err != nil {
		return nil, err
	}
	return est, nil
}

// NewController returns a coin controller spending from w with the policy
// configured in cfg.
func NewController(cfg *Config, w coinctl.Wallet, est chainfee.Estimator,
	prompt coinctl.PassphrasePrompter, out io.Writer) *coinctl.Controller {

	return coinctl.NewController(&coinctl.Config{
		Wallet:        w,
		Net:           cfg.ActiveNetParams.Params,
		FeeEstimator:  est,
		ConfTarget:    cfg.ConfTarget,
		MinConf:       cfg.MinConf,
		MaxFeeRatio:   cfg.MaxFeeRatio,
		UnlockTimeout: cfg.UnlockTimeout,
		Prompt:        prompt,
		Out:           out,
	})
}
