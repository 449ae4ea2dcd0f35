package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"strings"
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrspendfrom"
	"github.com/decred/dcrspendfrom/coinctl"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func getFlagSet(name string, flags []cli.Flag) *flag.FlagSet {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.SetOutput(io.Discard)

	for _, f := range flags {
		f.Apply(set)
	}
	return set
}

// newCommandContext parses args against the flags of cmd.
func newCommandContext(t *testing.T, cmd cli.Command,
	args []string) *cli.Context {

	t.Helper()

	set := getFlagSet(cmd.Name, cmd.Flags)
	require.NoError(t, set.Parse(args))

	return cli.NewContext(cli.NewApp(), set, nil)
}

// TestPrintAddresses checks the plain and table renderings of the address
// list.
func TestPrintAddresses(t *testing.T) {
	t.Parallel()

	summaries := []coinctl.AddressSummary{{
		Address: "SsAddrOne",
		Account: "default",
		Total:   170000000,
		Coins:   make([]coinctl.Coin, 2),
	}, {
		Address: "SsAddrTwo",
		Account: "savings",
		Total:   12345,
		Coins:   make([]coinctl.Coin, 1),
	}}

	var plain bytes.Buffer
	require.NoError(t, printAddresses(&plain, summaries, false))
	require.Equal(t, "SsAddrOne 1.70000000 default (2 transactions)\n"+
		"SsAddrTwo 0.00012345 savings\n", plain.String())

	var tbl bytes.Buffer
	require.NoError(t, printAddresses(&tbl, summaries, true))
	out := tbl.String()
	require.Contains(t, out, "SsAddrOne")
	require.Contains(t, out, "1.70000000")
	require.Contains(t, out, "SsAddrTwo")
	require.Contains(t, out, "savings")

	var empty bytes.Buffer
	require.NoError(t, printAddresses(&empty, nil, false))
	require.Empty(t, empty.String())
}

// TestParseSpendRequest exercises the spend flag parsing.
func TestParseSpendRequest(t *testing.T) {
	t.Parallel()

	fee := dcrutil.Amount(20000)

	tests := []struct {
		name    string
		args    []string
		want    *coinctl.SpendRequest
		wantErr string
	}{{
		name: "single source",
		args: []string{"--from", "SsA", "--to", "SsC", "--amount",
			"1.5"},
		want: &coinctl.SpendRequest{
			From:   []string{"SsA"},
			To:     "SsC",
			Amount: 150000000,
		},
	}, {
		name: "ordered sources with fee and dry run",
		args: []string{"--from", "SsB, SsA,", "--to", "SsC",
			"--amount", "0.1", "--fee", "0.0002", "--dry_run"},
		want: &coinctl.SpendRequest{
			From:   []string{"SsB", "SsA"},
			To:     "SsC",
			Amount: 10000000,
			Fee:    &fee,
			DryRun: true,
		},
	}, {
		name:    "no sources",
		args:    []string{"--from", " , ", "--to", "SsC", "--amount", "1"},
		wantErr: "--from",
	}, {
		name:    "no destination",
		args:    []string{"--from", "SsA", "--amount", "1"},
		wantErr: "--to",
	}, {
		name:    "no amount",
		args:    []string{"--from", "SsA", "--to", "SsC"},
		wantErr: "--amount",
	}}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := newCommandContext(t, spendCommand, tc.args)
			req, err := parseSpendRequest(ctx)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, req)
		})
	}
}

// TestSpendShowsHelp checks that spend without flags prints its help and
// reports failures to do so.
func TestSpendShowsHelp(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	app := cli.NewApp()
	app.Writer = &buf
	app.Commands = []cli.Command{spendCommand}

	ctx := cli.NewContext(app, getFlagSet("spend", spendCommand.Flags), nil)
	require.NoError(t, spend(ctx))
	require.Contains(t, buf.String(), "--amount")

	// Without the command registered there is no help to show.
	app.Commands = nil
	require.Error(t, spend(ctx))
}

// TestPrintSpendResult checks that a dry run prints the transaction and a
// broadcast prints its hash.
func TestPrintSpendResult(t *testing.T) {
	t.Parallel()

	var dry bytes.Buffer
	err := printSpendResult(&dry, &coinctl.SpendResult{Hex: "0100abcd"})
	require.NoError(t, err)
	require.Equal(t, "0100abcd\n", dry.String())

	const txid = "4fe5b9d7ab3ae21d19e1e1c0e4e1bc8a1c5a4a0b6b6b2f5c0d3b2a1908070605"
	hash, err := chainhash.NewHashFromStr(txid)
	require.NoError(t, err)

	var sent bytes.Buffer
	err = printSpendResult(&sent, &coinctl.SpendResult{
		TxHash: hash,
		Hex:    "0100abcd",
	})
	require.NoError(t, err)
	require.Equal(t, txid+"\n", sent.String())
}

// TestApplyGlobalFlags makes sure only the flags given on the command line
// override the loaded configuration.
func TestApplyGlobalFlags(t *testing.T) {
	app := cli.NewApp()
	set := getFlagSet("dcrspendfrom", []cli.Flag{
		cli.BoolFlag{Name: "simnet"},
		cli.StringFlag{Name: "rpcuser"},
		cli.StringFlag{Name: "rpcpass"},
		cli.IntFlag{Name: "minconf", Value: 1},
		cli.Float64Flag{Name: "maxfeeratio", Value: 0.01},
		cli.Float64Flag{Name: "feerate"},
		cli.UintFlag{Name: "conftarget", Value: 2},
	})
	require.NoError(t, set.Parse([]string{
		"--simnet", "--minconf", "6", "--feerate", "0.0002",
		"--conftarget", "4",
	}))
	globalCtx := cli.NewContext(app, set, nil)
	ctx := cli.NewContext(app, getFlagSet("spend", nil), globalCtx)

	cfg := dcrspendfrom.DefaultConfig()
	cfg.RPCUser = "fromfile"
	cfg.MaxFeeRatio = 0.05
	applyGlobalFlags(ctx, &cfg)

	require.True(t, cfg.SimNet)
	require.False(t, cfg.TestNet)
	require.Equal(t, int32(6), cfg.MinConf)
	require.Equal(t, 0.0002, cfg.FeeRate)
	require.Equal(t, uint32(4), cfg.ConfTarget)

	// Values not given on the command line are kept.
	require.Equal(t, "fromfile", cfg.RPCUser)
	require.Equal(t, 0.05, cfg.MaxFeeRatio)
}

// TestDescriptorCommand checks the descriptor is printed as JSON with its
// resolved requirements.
func TestDescriptorCommand(t *testing.T) {
	var buf bytes.Buffer
	oldOutput := output
	output = &buf
	defer func() { output = oldOutput }()

	ctx := newCommandContext(t, descriptorCommand, nil)
	require.NoError(t, descriptor(ctx))

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "dcrspendfrom", resp["name"])
	require.Equal(t, []interface{}{"cmd/dcrspendfrom"}, resp["scripts"])

	resolved, ok := resp["resolved_requires"].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, resolved, "github.com/decred/dcrd/rpcclient/v8")
	require.True(t, strings.HasPrefix(buf.String(), "{\n"))
}
