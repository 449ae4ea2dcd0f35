package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrspendfrom"
	"github.com/decred/dcrspendfrom/build"
	"github.com/decred/dcrspendfrom/coinctl"
	"github.com/jedib0t/go-pretty/table"
	"github.com/urfave/cli"
)

var listAddressesCommand = cli.Command{
	Name:  "listaddresses",
	Usage: "List addresses with spendable outputs.",
	Description: `
	Lists every wallet address holding spendable outputs with at least
	--minconf confirmations, along with the total value held by the
	address and the account it belongs to.
	`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "table",
			Usage: "render the addresses as a table",
		},
	},
	Action: listAddresses,
}

func listAddresses(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer cfg.LogWriter.Close()

	ctxc, cancel := getContext()
	defer cancel()

	client, err := dcrspendfrom.Connect(ctxc, cfg)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	summaries, err := coinctl.ListAvailable(
		ctxc, client, cfg.MinConf, cfg.ActiveNetParams.Params,
	)
	if err != nil {
		return err
	}
	dcrspendfrom.Log().Debugf("Found %d addresses with spendable outputs",
		len(summaries))

	return printAddresses(output, summaries, ctx.Bool("table"))
}

// printAddresses writes one entry per address summary to w.
func printAddresses(w io.Writer, summaries []coinctl.AddressSummary,
	asTable bool) error {

	if asTable {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"Address", "Amount", "Account", "Outputs"})
		for _, s := range summaries {
			t.AppendRow(table.Row{
				s.Address, fmt.Sprintf("%.8f", s.Total.ToCoin()),
				s.Account, len(s.Coins),
			})
		}
		t.Render()
		return nil
	}

	for _, s := range summaries {
		line := fmt.Sprintf("%s %.8f %s", s.Address, s.Total.ToCoin(),
			s.Account)
		if len(s.Coins) > 1 {
			line += fmt.Sprintf(" (%d transactions)", len(s.Coins))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

var spendCommand = cli.Command{
	Name:      "spend",
	Usage:     "Send an amount from a set of addresses.",
	ArgsUsage: "--from addr[,addr...] --to addr --amount X [--fee Y]",
	Description: `
	Builds, signs and broadcasts a transaction paying --amount DCR to --to
	using only outputs held by the --from addresses. Outputs are spent in
	the order the source addresses are given. Change is returned to the
	last source address.

	When --fee is not given, the fee is computed from the size of the
	transaction and the configured fee rate. Transactions paying more than
	--maxfeeratio of the amount in fees are rejected.

	The wallet is unlocked for --unlocktimeout seconds if needed, prompting
	for its passphrase.
	`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "from",
			Usage: "comma separated list of source addresses",
		},
		cli.StringFlag{
			Name:  "to",
			Usage: "the destination address",
		},
		cli.Float64Flag{
			Name:  "amount",
			Usage: "the amount to send, in DCR",
		},
		cli.Float64Flag{
			Name:  "fee",
			Usage: "the fee to pay, in DCR",
		},
		cli.BoolFlag{
			Name: "dry_run",
			Usage: "print the signed transaction instead of " +
				"broadcasting it",
		},
	},
	Action: spend,
}

// parseSpendRequest extracts a spend request from the command flags.
func parseSpendRequest(ctx *cli.Context) (*coinctl.SpendRequest, error) {
	var from []string
	for _, addr := range strings.Split(ctx.String("from"), ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			from = append(from, addr)
		}
	}
	if len(from) == 0 {
		return nil, errors.New("at least one source address must be " +
			"given with --from")
	}

	to := strings.TrimSpace(ctx.String("to"))
	if to == "" {
		return nil, errors.New("a destination address must be given " +
			"with --to")
	}

	if !ctx.IsSet("amount") {
		return nil, errors.New("an amount must be given with --amount")
	}
	amount, err := dcrutil.NewAmount(ctx.Float64("amount"))
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	req := &coinctl.SpendRequest{
		From:   from,
		To:     to,
		Amount: amount,
		DryRun: ctx.Bool("dry_run"),
	}

	if ctx.IsSet("fee") {
		fee, err := dcrutil.NewAmount(ctx.Float64("fee"))
		if err != nil {
			return nil, fmt.Errorf("invalid fee: %w", err)
		}
		req.Fee = &fee
	}

	return req, nil
}

func spend(ctx *cli.Context) error {
	if ctx.NumFlags() == 0 {
		return cli.ShowCommandHelp(ctx, "spend")
	}

	req, err := parseSpendRequest(ctx)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer cfg.LogWriter.Close()

	ctxc, cancel := getContext()
	defer cancel()

	client, err := dcrspendfrom.Connect(ctxc, cfg)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	est, err := dcrspendfrom.NewFeeEstimator(ctxc, cfg, client.TxFee)
	if err != nil {
		return err
	}
	defer est.Stop()

	dcrspendfrom.Log().Debugf("Sending %v from %v to %v", req.Amount,
		req.From, req.To)

	ctrl := dcrspendfrom.NewController(
		cfg, client, est, readPassword, os.Stderr,
	)
	res, err := ctrl.Spend(ctxc, req)
	if err != nil {
		return err
	}

	return printSpendResult(output, res)
}

// printSpendResult writes the signed transaction of a dry run, or the hash of
// the broadcast transaction, to w.
func printSpendResult(w io.Writer, res *coinctl.SpendResult) error {
	if res.TxHash == nil {
		_, err := fmt.Fprintln(w, res.Hex)
		return err
	}
	_, err := fmt.Fprintln(w, res.TxHash)
	return err
}

var descriptorCommand = cli.Command{
	Name:  "descriptor",
	Usage: "Display the package descriptor.",
	Description: `
	Prints the name, version and dependencies of this build, including the
	versions of the dependencies it was built with.
	`,
	Action: descriptor,
}

// descriptorResp is the descriptor as printed by the descriptor command.
type descriptorResp struct {
	build.Descriptor
	ResolvedRequires map[string]string `json:"resolved_requires,omitempty"`
}

func descriptor(ctx *cli.Context) error {
	desc := build.Package
	if err := desc.Validate(); err != nil {
		return err
	}

	return printJSON(descriptorResp{
		Descriptor:       desc,
		ResolvedRequires: desc.ResolvedRequires(),
	})
}
