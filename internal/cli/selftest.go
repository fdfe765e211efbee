package cli

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-xmodem/internal/loopback"
	"github.com/arloliu/go-xmodem/xmodem"
)

const (
	defaultSelftestSize = 32 * 1024
	selftestSender      = "sender"
	selftestReceiver    = "receiver"
)

func newSelftestCmd(a *app) *cobra.Command {
	var (
		size  int
		noise int
		seed  uint64
	)

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run a sender and a receiver against each other in memory",
		Long: `Transfer a pseudo-random payload between a sender and a receiver joined by
an in-memory serial line, then verify the received bytes.

--noise N corrupts every N-th data block on the line to exercise the NAK and
retransmission path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 0 {
				return fmt.Errorf("invalid --size %d", size)
			}

			return a.runSelftest(cmd, size, noise, seed)
		},
	}

	cmd.Flags().IntVar(&size, "size", defaultSelftestSize, "payload size in bytes")
	cmd.Flags().IntVar(&noise, "noise", 0, "corrupt every N-th data block (0 disables)")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "payload seed")

	return cmd
}

func (a *app) runSelftest(cmd *cobra.Command, size, noise int, seed uint64) error {
	opts, err := a.cfg.EngineOptions()
	if err != nil {
		return err
	}

	src := make([]byte, size)
	rng := rand.New(rand.NewPCG(seed, seed))
	for i := range src {
		src[i] = byte(rng.UintN(256))
	}

	tx, rx := loopback.New(a.cfg.ReadTimeout)
	defer tx.Close()
	defer rx.Close()
	tx.SetNoise(loopback.CorruptEvery(noise))

	names := []string{selftestSender, selftestReceiver}
	results := xsync.NewMapOf[string, transferResult]()
	var dst bytes.Buffer

	run := func(tr tracker, name string, fn func([]xmodem.Option) (int64, error)) {
		start := time.Now()
		metrics := &xmodem.TransferMetrics{}
		roleOpts := append(opts[:len(opts):len(opts)],
			xmodem.WithLogger(a.log.With("selftest", name)),
			xmodem.WithMetrics(metrics),
			xmodem.WithProgress(tr.progress(name)),
		)

		n, err := fn(roleOpts)
		results.Store(name, transferResult{bytes: n, metrics: metrics, duration: time.Since(start), err: err})
		tr.finish(name, err)
	}

	title := fmt.Sprintf("selftest: %d bytes, %s, %d-byte blocks", size, a.cfg.Mode, a.cfg.BlockSize)
	err = track(cmd.OutOrStdout(), a.tui, title, names, int64(size), func(tr tracker) {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(tr, selftestSender, func(o []xmodem.Option) (int64, error) {
				return xmodem.Send(tx, bytes.NewReader(src), o...)
			})
		}()

		run(tr, selftestReceiver, func(o []xmodem.Option) (int64, error) {
			return xmodem.Receive(rx, &dst, o...)
		})
		wg.Wait()
	})
	if err != nil {
		return err
	}

	if err := printSummary(cmd.OutOrStdout(), "transferred", names, results); err != nil {
		return err
	}

	if err := verifyPayload(src, dst.Bytes(), byte(a.cfg.PadByte)); err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), failStyle.Render("payload mismatch"))
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("verified %d bytes", size)))

	return nil
}

// verifyPayload checks that got is src followed only by pad bytes.
func verifyPayload(src, got []byte, pad byte) error {
	if len(got) < len(src) {
		return fmt.Errorf("received %d bytes, want at least %d", len(got), len(src))
	}

	if i := firstDiff(src, got); i >= 0 {
		return fmt.Errorf("payload differs at offset %d", i)
	}

	for i, b := range got[len(src):] {
		if b != pad {
			return fmt.Errorf("padding byte at offset %d is 0x%02X, want 0x%02X", len(src)+i, b, pad)
		}
	}

	return nil
}

func firstDiff(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}

	return -1
}
