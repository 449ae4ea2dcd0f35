package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/decred/dcrspendfrom"
	"github.com/decred/dcrspendfrom/build"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

// output is where command results are written. Logs go to stderr.
var output io.Writer = os.Stdout

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[dcrspendfrom] %v\n", err)
	os.Exit(1)
}

// getContext returns a context that is canceled when the process is
// interrupted.
func getContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

// loadConfig builds the application config from the defaults, the config file
// and the global flags in ctx, in increasing order of precedence.
func loadConfig(ctx *cli.Context) (*dcrspendfrom.Config, error) {
	preCfg := dcrspendfrom.DefaultConfig()
	if ctx.GlobalIsSet("appdir") {
		preCfg.AppDir = ctx.GlobalString("appdir")
	}
	if ctx.GlobalIsSet("configfile") {
		preCfg.ConfigFile = ctx.GlobalString("configfile")
	}

	return dcrspendfrom.LoadConfig(preCfg, func(cfg *dcrspendfrom.Config) {
		applyGlobalFlags(ctx, cfg)
	})
}

// applyGlobalFlags copies every global flag that was explicitly set on the
// command line into cfg.
func applyGlobalFlags(ctx *cli.Context, cfg *dcrspendfrom.Config) {
	setString := func(name string, dst *string) {
		if ctx.GlobalIsSet(name) {
			*dst = ctx.GlobalString(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if ctx.GlobalIsSet(name) {
			*dst = ctx.GlobalBool(name)
		}
	}

	setString("walletdir", &cfg.WalletDir)
	setBool("testnet", &cfg.TestNet)
	setBool("simnet", &cfg.SimNet)
	setString("rpcserver", &cfg.RPCServer)
	setString("rpcuser", &cfg.RPCUser)
	setString("rpcpass", &cfg.RPCPass)
	setString("rpccert", &cfg.RPCCert)
	setBool("notls", &cfg.NoTLS)
	setString("feeurl", &cfg.FeeURL)
	setString("logdir", &cfg.LogDir)
	setString("debuglevel", &cfg.DebugLevel)

	if ctx.GlobalIsSet("minconf") {
		cfg.MinConf = int32(ctx.GlobalInt("minconf"))
	}
	if ctx.GlobalIsSet("unlocktimeout") {
		cfg.UnlockTimeout = ctx.GlobalInt64("unlocktimeout")
	}
	if ctx.GlobalIsSet("maxfeeratio") {
		cfg.MaxFeeRatio = ctx.GlobalFloat64("maxfeeratio")
	}
	if ctx.GlobalIsSet("feerate") {
		cfg.FeeRate = ctx.GlobalFloat64("feerate")
	}
	if ctx.GlobalIsSet("conftarget") {
		cfg.ConfTarget = uint32(ctx.GlobalUint("conftarget"))
	}
	if ctx.GlobalIsSet("maxlogfiles") {
		cfg.MaxLogFiles = ctx.GlobalInt("maxlogfiles")
	}
	if ctx.GlobalIsSet("maxlogfilesize") {
		cfg.MaxLogFileSize = ctx.GlobalInt("maxlogfilesize")
	}
}

func main() {
	defaults := dcrspendfrom.DefaultConfig()

	app := cli.NewApp()
	app.Name = "dcrspendfrom"
	app.Version = build.Version() + " commit=" + build.SourceCommit()
	app.Usage = "spend from chosen addresses of a dcrwallet"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "appdir",
			Value: defaults.AppDir,
			Usage: "The path to dcrspendfrom's base directory.",
		},
		cli.StringFlag{
			Name:  "configfile, C",
			Value: defaults.ConfigFile,
			Usage: "The path to the configuration file.",
		},
		cli.StringFlag{
			Name:  "walletdir",
			Value: defaults.WalletDir,
			Usage: "The path to dcrwallet's data directory, used to " +
				"find its RPC credentials and certificate.",
		},
		cli.BoolFlag{
			Name:  "testnet",
			Usage: "Use the test network.",
		},
		cli.BoolFlag{
			Name:  "simnet",
			Usage: "Use the simulation test network.",
		},
		cli.StringFlag{
			Name: "rpcserver",
			Usage: "host:port of the wallet JSON-RPC server " +
				"(default: localhost on the network's wallet port).",
		},
		cli.StringFlag{
			Name:  "rpcuser",
			Usage: "Wallet JSON-RPC username.",
		},
		cli.StringFlag{
			Name:  "rpcpass",
			Usage: "Wallet JSON-RPC password.",
		},
		cli.StringFlag{
			Name:  "rpccert",
			Usage: "The path to the wallet's TLS certificate.",
		},
		cli.BoolFlag{
			Name:  "notls",
			Usage: "Connect to the wallet over plain HTTP.",
		},
		cli.IntFlag{
			Name:  "minconf",
			Value: int(defaults.MinConf),
			Usage: "Minimum number of confirmations of spent outputs.",
		},
		cli.Int64Flag{
			Name:  "unlocktimeout",
			Value: defaults.UnlockTimeout,
			Usage: "Seconds to unlock a locked wallet for.",
		},
		cli.Float64Flag{
			Name:  "maxfeeratio",
			Value: defaults.MaxFeeRatio,
			Usage: "Largest fee allowed, as a fraction of the " +
				"amount sent.",
		},
		cli.Float64Flag{
			Name: "feerate",
			Usage: "Fee rate in DCR/kB used when no explicit fee " +
				"is given (default: the wallet's fee rate).",
		},
		cli.StringFlag{
			Name: "feeurl",
			Usage: "URL of a fee estimation API returning " +
				"fee_by_block_target in atoms/kB.",
		},
		cli.UintFlag{
			Name:  "conftarget",
			Value: uint(defaults.ConfTarget),
			Usage: "Confirmation target used with --feeurl.",
		},
		cli.StringFlag{
			Name:  "logdir",
			Value: defaults.LogDir,
			Usage: "Directory to log output.",
		},
		cli.IntFlag{
			Name:  "maxlogfiles",
			Value: defaults.MaxLogFiles,
			Usage: "Maximum logfiles to keep (0 for no rotation).",
		},
		cli.IntFlag{
			Name:  "maxlogfilesize",
			Value: defaults.MaxLogFileSize,
			Usage: "Maximum logfile size in MB.",
		},
		cli.StringFlag{
			Name:  "debuglevel, d",
			Value: defaults.DebugLevel,
			Usage: "Logging level for all subsystems, or " +
				"<global-level>,<subsystem>=<level>,... " +
				"Use 'show' to list subsystems.",
		},
	}
	app.Commands = []cli.Command{
		listAddressesCommand,
		spendCommand,
		descriptorCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// readPassword reads a password from the terminal. This requires there to be an
// actual TTY so passing in a password from stdin won't work.
func readPassword(text string) (string, error) {
	fmt.Fprint(os.Stderr, text)

	// The variable syscall.Stdin is of a different type in the Windows API
	// that's why we need the explicit cast. And of course the linter
	// doesn't like it either.
	pw, err := term.ReadPassword(int(syscall.Stdin)) // nolint:unconvert
	fmt.Fprintln(os.Stderr)
	return string(pw), err
}

// printJSON writes resp to the command output as indented JSON.
func printJSON(resp interface{}) error {
	b, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(output, "%s\n", b)
	return err
}
