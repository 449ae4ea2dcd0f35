package dcrspendfrom

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrspendfrom/build"
	"github.com/decred/dcrspendfrom/coinctl"
	"github.com/decred/dcrspendfrom/netparams"
	"github.com/decred/dcrspendfrom/rpcwallet"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename  = "dcrspendfrom.conf"
	defaultLogLevel        = "info"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "dcrspendfrom.log"
	defaultRPCHost         = "localhost"
	defaultWalletConfName  = "dcrwallet.conf"
	defaultRPCCertFilename = "rpc.cert"
	defaultMaxLogFiles     = 3
	defaultMaxLogFileSize  = 10
	defaultMinConf         = 1
)

var (
	// DefaultAppDir is the default directory holding the configuration
	// file and logs.
	DefaultAppDir = dcrutil.AppDataDir("dcrspendfrom", false)

	// DefaultConfigFile is the default full path of the configuration
	// file.
	DefaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)

	// DefaultWalletDir is the default application data directory of
	// dcrwallet.
	DefaultWalletDir = dcrutil.AppDataDir("dcrwallet", false)

	defaultLogDir = filepath.Join(DefaultAppDir, defaultLogDirname)
)

// Config holds the options of the coin control tool.
type Config struct {
	AppDir     string `long:"appdir" description:"Directory holding the configuration file and logs"`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	WalletDir  string `long:"walletdir" description:"Application data directory of dcrwallet, used to find its RPC credentials and certificate"`

	TestNet bool `long:"testnet" description:"Use the test network"`
	SimNet  bool `long:"simnet" description:"Use the simulation test network"`

	RPCServer string `long:"rpcserver" description:"Wallet JSON-RPC server to connect to (default: localhost on the network's wallet port)"`
	RPCUser   string `long:"rpcuser" description:"Wallet JSON-RPC username (default: read from dcrwallet.conf)"`
	RPCPass   string `long:"rpcpass" default-mask:"-" description:"Wallet JSON-RPC password (default: read from dcrwallet.conf)"`
	RPCCert   string `long:"rpccert" description:"Wallet JSON-RPC TLS certificate (default: rpc.cert in the wallet directory)"`
	NoTLS     bool   `long:"notls" description:"Connect to the wallet over plain HTTP"`

	MinConf       int32   `long:"minconf" description:"Minimum number of confirmations of spent outputs"`
	UnlockTimeout int64   `long:"unlocktimeout" description:"Seconds to unlock a locked wallet for"`
	MaxFeeRatio   float64 `long:"maxfeeratio" description:"Largest fee allowed, as a fraction of the amount sent"`
	FeeRate       float64 `long:"feerate" description:"Fee rate in DCR/kB used when no explicit fee is given (default: the wallet's fee rate)"`
	FeeURL        string  `long:"feeurl" description:"URL of a fee estimation API returning fee_by_block_target in atoms/kB"`
	ConfTarget    uint32  `long:"conftarget" description:"Confirmation target used with --feeurl"`

	LogDir         string `long:"logdir" description:"Directory to log output"`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	DebugLevel     string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	// LogWriter is the root logger that all of the subloggers are
	// registered with.
	LogWriter *build.RotatingLogWriter

	// ActiveNetParams contains parameters of the target network.
	ActiveNetParams netparams.DecredNetParams
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		AppDir:          DefaultAppDir,
		ConfigFile:      DefaultConfigFile,
		WalletDir:       DefaultWalletDir,
		MinConf:         defaultMinConf,
		UnlockTimeout:   coinctl.DefaultUnlockTimeout,
		MaxFeeRatio:     coinctl.DefaultMaxFeeRatio,
		ConfTarget:      coinctl.DefaultConfTarget,
		LogDir:          defaultLogDir,
		MaxLogFiles:     defaultMaxLogFiles,
		MaxLogFileSize:  defaultMaxLogFileSize,
		DebugLevel:      defaultLogLevel,
		LogWriter:       build.NewRotatingLogWriter(),
		ActiveNetParams: netparams.MainNetParams,
	}
}

// LoadConfig layers the configuration file on top of preCfg, which holds the
// defaults and any command line overrides of the file location, re-applies the
// command line options with overrides and validates the result.
func LoadConfig(preCfg Config, overrides func(*Config)) (*Config, error) {
	// If the config file path has not been modified by the user, then we'll
	// use the default config file path. However, if the user has modified
	// their appdir, then we should assume they intend to use the config
	// file within it.
	configFileDir := CleanAndExpandPath(preCfg.AppDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	if configFileDir != DefaultAppDir && configFilePath == DefaultConfigFile {
		configFilePath = filepath.Join(configFileDir, defaultConfigFilename)
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return nil, err
		}

		configFileError = err
	}

	// Command line options take precedence over the file.
	if overrides != nil {
		overrides(&cfg)
	}

	cleanCfg, err := ValidateConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done.
	if configFileError != nil {
		spndLog.Warnf("%v", configFileError)
	}

	return cleanCfg, nil
}

// ValidateConfig check the given configuration to be sane. This makes sure no
// illegal values or combination of values are set. All file system paths are
// normalized. The cleaned up config is returned on success.
func ValidateConfig(cfg Config) (*Config, error) {
	funcName := "ValidateConfig"

	// If the provided app directory is not the default, we'll move the
	// logs within it unless they were set explicitly.
	appDir := CleanAndExpandPath(cfg.AppDir)
	if appDir != DefaultAppDir && cfg.LogDir == defaultLogDir {
		cfg.LogDir = filepath.Join(appDir, defaultLogDirname)
	}
	cfg.AppDir = appDir

	cfg.ConfigFile = CleanAndExpandPath(cfg.ConfigFile)
	cfg.WalletDir = CleanAndExpandPath(cfg.WalletDir)
	cfg.RPCCert = CleanAndExpandPath(cfg.RPCCert)
	cfg.LogDir = CleanAndExpandPath(cfg.LogDir)

	// Multiple networks can't be selected simultaneously.
	netName := "mainnet"
	switch {
	case cfg.TestNet && cfg.SimNet:
		return nil, fmt.Errorf("%s: the testnet and simnet params "+
			"can't be used together -- choose one of the two",
			funcName)
	case cfg.TestNet:
		netName = "testnet3"
	case cfg.SimNet:
		netName = "simnet"
	}
	activeNet, err := netparams.ByName(netName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", funcName, err)
	}
	cfg.ActiveNetParams = *activeNet

	if cfg.RPCServer == "" {
		cfg.RPCServer = net.JoinHostPort(
			defaultRPCHost, cfg.ActiveNetParams.WalletRPCPort,
		)
	} else if _, _, err := net.SplitHostPort(cfg.RPCServer); err != nil {
		cfg.RPCServer = net.JoinHostPort(
			cfg.RPCServer, cfg.ActiveNetParams.WalletRPCPort,
		)
	}

	if cfg.RPCCert == "" {
		cfg.RPCCert = filepath.Join(cfg.WalletDir, defaultRPCCertFilename)
	}

	if err := parseRPCParams(&cfg, funcName); err != nil {
		return nil, err
	}

	switch {
	case cfg.MinConf < 0:
		return nil, fmt.Errorf("%s: minconf must be non-negative",
			funcName)
	case cfg.UnlockTimeout <= 0:
		return nil, fmt.Errorf("%s: unlocktimeout must be positive",
			funcName)
	case cfg.MaxFeeRatio <= 0 || cfg.MaxFeeRatio > 1:
		return nil, fmt.Errorf("%s: maxfeeratio must be in (0, 1]",
			funcName)
	case cfg.FeeRate < 0:
		return nil, fmt.Errorf("%s: feerate must be non-negative",
			funcName)
	case cfg.FeeRate > 0 && cfg.FeeURL != "":
		return nil, fmt.Errorf("%s: feerate and feeurl can't be used "+
			"together", funcName)
	case cfg.ConfTarget == 0:
		return nil, fmt.Errorf("%s: conftarget must be positive",
			funcName)
	}

	if cfg.LogWriter != nil {
		// Initialize logging at the default logging level.
		SetupLoggers(cfg.LogWriter)

		// Special show command to list supported subsystems and exit.
		if cfg.DebugLevel == "show" {
			fmt.Println("Supported subsystems",
				cfg.LogWriter.SupportedSubsystems())
			os.Exit(0)
		}

		err := cfg.LogWriter.InitLogRotator(
			filepath.Join(cfg.LogDir, defaultLogFilename),
			cfg.MaxLogFileSize, cfg.MaxLogFiles,
		)
		if err != nil {
			str := "%s: log rotation setup failed: %v"
			return nil, fmt.Errorf(str, funcName, err)
		}

		// Parse, validate, and set debug log level(s).
		err = build.ParseAndSetDebugLevels(cfg.DebugLevel, cfg.LogWriter)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", funcName, err)
		}
	}

	return &cfg, nil
}

// WalletRPCConfig returns the connection parameters of the wallet.
func (c *Config) WalletRPCConfig() (*rpcwallet.Config, error) {
	rpcCfg := &rpcwallet.Config{
		Host:       c.RPCServer,
		User:       c.RPCUser,
		Pass:       c.RPCPass,
		DisableTLS: c.NoTLS,
		Net:        c.ActiveNetParams.Params,
	}
	if !c.NoTLS {
		certs, err := ioutil.ReadFile(c.RPCCert)
		if err != nil {
			return nil, fmt.Errorf("unable to read wallet RPC "+
				"certificate: %w", err)
		}
		rpcCfg.Certificates = certs
	}
	return rpcCfg, nil
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/decred/dcrd
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// parseRPCParams fills in the wallet RPC credentials from the wallet's own
// configuration file when none were given.
func parseRPCParams(cfg *Config, funcName string) error {
	// If both RPCUser and RPCPass are set, we assume those credentials
	// are good to use.
	if cfg.RPCUser != "" && cfg.RPCPass != "" {
		return nil
	}

	// If only ONE of RPCUser or RPCPass is set, we assume the user did
	// that unintentionally.
	if cfg.RPCUser != "" || cfg.RPCPass != "" {
		return fmt.Errorf("%s: please set both or neither of "+
			"rpcuser, rpcpass", funcName)
	}

	confFile := filepath.Join(cfg.WalletDir, defaultWalletConfName)
	rpcUser, rpcPass, err := extractWalletRPCParams(confFile)
	if err != nil {
		return fmt.Errorf("%s: unable to extract RPC credentials: %v, "+
			"set rpcuser and rpcpass", funcName, err)
	}
	cfg.RPCUser, cfg.RPCPass = rpcUser, rpcPass

	return nil
}

var (
	walletUserRegexp = regexp.MustCompile(`(?m)^\s*username\s*=\s*([^\s]+)`)
	walletPassRegexp = regexp.MustCompile(`(?m)^\s*password\s*=\s*([^\s]+)`)
)

// extractWalletRPCParams attempts to extract the RPC credentials for an
// existing dcrwallet instance. The passed path is expected to be the location
// of dcrwallet's configuration file.
func extractWalletRPCParams(walletConfigPath string) (string, string, error) {
	configContents, err := ioutil.ReadFile(walletConfigPath)
	if err != nil {
		return "", "", err
	}

	userSubmatches := walletUserRegexp.FindSubmatch(configContents)
	if userSubmatches == nil {
		return "", "", fmt.Errorf("unable to find username in config")
	}

	passSubmatches := walletPassRegexp.FindSubmatch(configContents)
	if passSubmatches == nil {
		return "", "", fmt.Errorf("unable to find password in config")
	}

	return string(userSubmatches[1]), string(passSubmatches[1]), nil
}
