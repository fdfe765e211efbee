package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-xmodem/xmodem"
)

// transferResult is the outcome of one session.
type transferResult struct {
	bytes    int64
	metrics  *xmodem.TransferMetrics
	duration time.Duration
	err      error
}

func newSendCmd(a *app) *cobra.Command {
	var (
		ports     []string
		addresses []string
	)

	cmd := &cobra.Command{
		Use:   "send <file>",
		Short: "Send a file to one or more receivers",
		Long: `Send a file with XMODEM. The receiver chooses checksum or CRC-16 mode;
--block-size 1024 sends XMODEM-1K blocks.

--port and --address may be repeated to send the same file to several devices
at once, one independent session per device.`,
		Example: `  xmodem send firmware.bin --port /dev/ttyUSB0
  xmodem send firmware.bin --port /dev/ttyUSB0 --port /dev/ttyUSB1 --block-size 1024
  xmodem send firmware.bin --address 10.0.0.5:4001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := collectTargets(a.withConfigured(ports, addresses))
			if err != nil {
				return err
			}

			return a.runSend(cmd, args[0], targets)
		},
	}

	cmd.Flags().StringSliceVarP(&ports, "port", "p", nil, "serial device (repeatable)")
	cmd.Flags().StringSliceVarP(&addresses, "address", "a", nil, "TCP serial server host:port (repeatable)")

	return cmd
}

func (a *app) runSend(cmd *cobra.Command, path string, targets []target) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	opts, err := a.cfg.EngineOptions()
	if err != nil {
		return err
	}

	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.String()
	}

	results := xsync.NewMapOf[string, transferResult]()
	title := fmt.Sprintf("sending %s (%d bytes)", path, info.Size())

	err = track(cmd.OutOrStdout(), a.tui, title, names, info.Size(), func(tr tracker) {
		var wg sync.WaitGroup
		for _, t := range targets {
			wg.Add(1)
			go func() {
				defer wg.Done()

				res := a.sendTo(t, path, opts, tr.progress(t.String()))
				results.Store(t.String(), res)
				tr.finish(t.String(), res.err)
			}()
		}
		wg.Wait()
	})
	if err != nil {
		return err
	}

	return printSummary(cmd.OutOrStdout(), "sent", names, results)
}

// sendTo runs one send session against t.
func (a *app) sendTo(t target, path string, opts []xmodem.Option, progress xmodem.ProgressFunc) transferResult {
	start := time.Now()
	metrics := &xmodem.TransferMetrics{}

	opts = append(opts[:len(opts):len(opts)],
		xmodem.WithMetrics(metrics),
		xmodem.WithProgress(progress),
	)
	n, err := a.sendFile(t, path, opts)

	return transferResult{bytes: n, metrics: metrics, duration: time.Since(start), err: err}
}

func (a *app) sendFile(t target, path string, opts []xmodem.Option) (int64, error) {
	f, err := os.Open(path)
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
	log.Info("xmodem: waiting for receiver")

	return xmodem.Send(ln, bufio.NewReader(f), append(opts, xmodem.WithLogger(log))...)
}

// printSummary writes one line per transfer and reports whether all succeeded.
func printSummary(w io.Writer, verb string, names []string, results *xsync.MapOf[string, transferResult]) error {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	failed := 0
	for _, name := range sorted {
		res, ok := results.Load(name)
		if !ok {
			continue
		}

		if res.err != nil {
			failed++
			fmt.Fprintf(w, "%s %s  %s\n", failStyle.Render("FAIL"), nameStyle.Render(name), res.err)

			continue
		}

		fmt.Fprintf(w, "%s %s  %s\n", okStyle.Render("OK  "), nameStyle.Render(name),
			dimStyle.Render(fmt.Sprintf("%s %d bytes in %s, %d blocks, %d retries",
				verb, res.bytes, res.duration.Round(time.Millisecond),
				res.metrics.BlockSendCount.Load()+res.metrics.BlockRecvCount.Load(),
				res.metrics.BlockRetryCount.Load())))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d transfers failed", failed, len(names))
	}

	return nil
}
