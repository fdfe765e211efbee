package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-xmodem/xmodem"
)

func newReceiveCmd(a *app) *cobra.Command {
	var (
		port    string
		address string
		size    int64
	)

	cmd := &cobra.Command{
		Use:   "receive <file>",
		Short: "Receive a file from a sender",
		Long: `Receive a file with XMODEM and write it to <file>.

XMODEM carries no file length, so the last block arrives padded to the block
size. Pass --size to truncate the file to its known length.`,
		Example: `  xmodem receive dump.bin --port /dev/ttyUSB0
  xmodem receive dump.bin --address 10.0.0.5:4001 --mode checksum --size 30000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 0 {
				return fmt.Errorf("invalid --size %d", size)
			}

			var ports, addresses []string
			if port != "" {
				ports = append(ports, port)
			}
			if address != "" {
				addresses = append(addresses, address)
			}

			targets, err := collectTargets(a.withConfigured(ports, addresses))
			if err != nil {
				return err
			}
			if len(targets) > 1 {
				return errors.New("receive takes either --port or --address, not both")
			}

			return a.runReceive(cmd, args[0], targets[0], size)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "serial device")
	cmd.Flags().StringVarP(&address, "address", "a", "", "TCP serial server host:port")
	cmd.Flags().Int64Var(&size, "size", 0, "expected file length; trailing padding beyond it is removed")

	return cmd
}

func (a *app) runReceive(cmd *cobra.Command, path string, t target, size int64) error {
	opts, err := a.cfg.EngineOptions()
	if err != nil {
		return err
	}

	name := t.String()
	results := xsync.NewMapOf[string, transferResult]()

	err = track(cmd.OutOrStdout(), a.tui, "receiving "+path, []string{name}, size, func(tr tracker) {
		start := time.Now()
		metrics := &xmodem.TransferMetrics{}

		opts = append(opts, xmodem.WithMetrics(metrics), xmodem.WithProgress(tr.progress(name)))
		n, err := a.receiveFile(t, path, size, opts)

		results.Store(name, transferResult{bytes: n, metrics: metrics, duration: time.Since(start), err: err})
		tr.finish(name, err)
	})
	if err != nil {
		return err
	}

	return printSummary(cmd.OutOrStdout(), "received", []string{name}, results)
}

// receiveFile receives into path and truncates it to size when size is set.
func (a *app) receiveFile(t target, path string, size int64, opts []xmodem.Option) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	ln, err := a.open(t)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", t, err)
	}
	defer ln.Close()

	log := a.log.With("target", t.String(), "file", path)
	log.Info("xmodem: requesting transfer")

	n, err := xmodem.Receive(ln, f, append(opts, xmodem.WithLogger(log))...)
	if err != nil {
		return n, err
	}

	if size > 0 && n > size {
		if err := f.Truncate(size); err != nil {
			return n, err
		}
		log.Debug("xmodem: removed padding", "padding", n-size)
		n = size
	}

	return n, f.Sync()
}
