// Package cli implements the xmodem command-line tool.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-xmodem/internal/config"
	"github.com/arloliu/go-xmodem/logger"
)

// app carries the global flags and the state prepared by PersistentPreRunE.
type app struct {
	// Global flags
	cfgFile     string
	logLevel    string
	logFormat   string
	tui         bool
	mode        string
	blockSize   int
	retryLimit  int
	baud        int
	readTimeout time.Duration

	// Shared state
	cfg *config.Config
	log logger.Logger
}

// NewRootCmd builds a fresh command tree. Each call returns independent flag
// state, so tests can execute several commands in one process.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "xmodem",
		Short: "Send and receive files with the XMODEM protocol",
		Long: `xmodem transfers files over serial lines and TCP serial servers using
XMODEM (checksum or CRC-16, 128-byte blocks) and XMODEM-1K.

Settings are read from ~/.xmodem/config.yaml when present; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ~/.xmodem/config.yaml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: json, text, console")
	pf.BoolVar(&a.tui, "tui", false, "show live transfer progress")
	pf.StringVar(&a.mode, "mode", "", "error detection requested by the receiver: crc16, checksum")
	pf.IntVar(&a.blockSize, "block-size", 0, "sender block size: 128 or 1024")
	pf.IntVar(&a.retryLimit, "retry-limit", 0, "failed attempts tolerated per phase")
	pf.IntVar(&a.baud, "baud", 0, "serial baud rate")
	pf.DurationVar(&a.readTimeout, "read-timeout", 0, "per-read timeout")

	root.AddCommand(
		newSendCmd(a),
		newReceiveCmd(a),
		newSelftestCmd(a),
		newPortsCmd(),
		newVersionCmd(),
	)

	return root
}

// Execute runs the root command and exits on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads the config file, applies flag overrides and creates the logger.
func (a *app) setup(cmd *cobra.Command) error {
	path := a.cfgFile
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.logFormat
	}
	if flags.Changed("mode") {
		cfg.Mode = a.mode
	}
	if flags.Changed("block-size") {
		cfg.BlockSize = a.blockSize
	}
	if flags.Changed("retry-limit") {
		cfg.RetryLimit = a.retryLimit
	}
	if flags.Changed("baud") {
		cfg.Baud = a.baud
	}
	if flags.Changed("read-timeout") {
		cfg.ReadTimeout = a.readTimeout
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	format, _ := logger.ParseFormat(cfg.LogFormat)
	if a.tui && level < logger.ErrorLevel {
		// Log lines would tear the progress view.
		level = logger.ErrorLevel
	}

	a.cfg = cfg
	a.log = logger.NewSlogFormat(cmd.ErrOrStderr(), format, level, false)

	return nil
}
