// benchmark samples a warp-synchronous kernel and prints a JSON summary of
// its per-thread step counts and run time.
//
// Without a GPU it runs simulated step-count scenarios timed on the host
// clock. Built with -tags cuda, timing anchors are CUDA events on the
// default stream.
//
// Usage:
//
//	benchmark [--scenario=<name>] [--counts=<file>] [--threads=<n>]
//	          [--runs=<n>] [--warmup=<n>] [--seed=<n>] [--per-warp]
//	          [--metrics-addr=<addr>]
//
// Scenarios:
//
//	uniform        Every thread executes the same number of steps.
//	divergent      Step counts drawn uniformly from [0, 2×base).
//	tail           One lane per warp runs 10× longer than its neighbours.
//	partial-warp   Uniform, except the trailing partial warp runs 4× longer.
//
// --counts replays a recorded step-count buffer (whitespace-separated
// unsigned integers) instead of a scenario. SAMPLE_RUNS and WARMUP_RUNS
// set the defaults for --runs and --warmup.
//
// With --metrics-addr the listener is bound before sampling starts, so a busy
// port fails the run up front. The process then keeps serving /metrics after
// printing the report until SIGINT or SIGTERM, or until the server fails.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justin-oleary/warpstat/pkg/device"
	_ "github.com/justin-oleary/warpstat/pkg/metrics" // register collectors
	"github.com/justin-oleary/warpstat/pkg/sampler"
	"github.com/justin-oleary/warpstat/pkg/timer"
	"github.com/justin-oleary/warpstat/pkg/warp"
)

// baseSteps is the per-thread step count of a well-behaved simulated lane.
const baseSteps = 1000

// defaultThreads leaves a trailing partial warp of 8 lanes.
const defaultThreads = 1000

type report struct {
	Timestamp string        `json:"timestamp"`
	Hostname  string        `json:"hostname"`
	GPUArch   string        `json:"gpu_arch"`
	Devices   []device.Info `json:"devices,omitempty"`
	Scenario  string        `json:"scenario"`
	Seed      int64         `json:"seed"`
	PerWarp   []uint32      `json:"per_warp_max,omitempty"` // last timed run
	sampler.Report
}

// scenario produces one launch worth of step counts.
type scenario func(rng *rand.Rand, threads int) []uint32

var scenarios = map[string]scenario{
	"uniform": func(_ *rand.Rand, threads int) []uint32 {
		return fill(threads, baseSteps)
	},

	"divergent": func(rng *rand.Rand, threads int) []uint32 {
		out := make([]uint32, threads)
		for i := range out {
			out[i] = uint32(rng.Intn(2 * baseSteps))
		}
		return out
	},

	"tail": func(_ *rand.Rand, threads int) []uint32 {
		out := fill(threads, baseSteps)
		for i := warp.WarpSize - 1; i < threads; i += warp.WarpSize {
			out[i] = 10 * baseSteps
		}
		return out
	},

	"partial-warp": func(_ *rand.Rand, threads int) []uint32 {
		out := fill(threads, baseSteps)
		for i := threads - threads%warp.WarpSize; i < threads; i++ {
			out[i] = 4 * baseSteps
		}
		return out
	},
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	env := sampler.ConfigFromEnv("", 0)

	scenarioName := flag.String("scenario", "divergent",
		"step-count scenario: "+strings.Join(scenarioNames(), ", "))
	countsPath := flag.String("counts", "", "file of recorded per-thread step counts (overrides --scenario)")
	threads := flag.Int("threads", 0, "threads per launch (default: 1000, or the length of --counts)")
	runs := flag.Int("runs", env.Runs, "timed sample runs")
	warmup := flag.Int("warmup", env.Warmup, "discarded warmup launches")
	seed := flag.Int64("seed", 1, "seed for simulated scenarios")
	perWarp := flag.Bool("per-warp", false, "include per-warp maxima of the last run")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus /metrics on this address, e.g. :9090")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout, options{
		scenario:    *scenarioName,
		countsPath:  *countsPath,
		threads:     *threads,
		runs:        *runs,
		warmup:      *warmup,
		seed:        *seed,
		perWarp:     *perWarp,
		metricsAddr: *metricsAddr,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type options struct {
	scenario    string
	countsPath  string
	threads     int
	runs        int
	warmup      int
	seed        int64
	perWarp     bool
	metricsAddr string
}

func run(ctx context.Context, w io.Writer, opts options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	name, kernel, threads, err := buildKernel(opts)
	if err != nil {
		return err
	}

	stream, err := timer.DefaultStream()
	if err != nil {
		return fmt.Errorf("timing stream: %w", err)
	}

	// Bind before sampling so a busy port fails the run instead of leaving
	// the process waiting on a server that never started.
	var serveErr chan error
	if opts.metricsAddr != "" {
		ln, err := net.Listen("tcp", opts.metricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		serveErr = make(chan error, 1)
		go func() { serveErr <- serveMetrics(ctx, ln) }()
	}

	var last []uint32
	recordLast := func(ctx context.Context) ([]uint32, error) {
		counts, err := kernel(ctx)
		last = counts
		return counts, err
	}

	cfg := sampler.Config{Name: name, Threads: threads, Runs: opts.runs, Warmup: opts.warmup}
	res, err := sampler.New(stream, cfg).Run(ctx, recordLast)
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	devices, _ := device.Query()
	r := report{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostname,
		GPUArch:   device.DetectGPUName(),
		Devices:   devices,
		Scenario:  name,
		Seed:      opts.seed,
		Report:    res,
	}
	if opts.perWarp {
		r.PerWarp = warp.WarpMaxima(last, warp.WarpSize)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	if serveErr != nil {
		select {
		case <-ctx.Done():
			return <-serveErr
		case err := <-serveErr:
			return err
		}
	}
	return nil
}

// buildKernel resolves the options into a launch function, its label, and
// the thread count each launch runs.
func buildKernel(opts options) (string, sampler.Kernel, int, error) {
	if opts.countsPath != "" {
		counts, err := readCounts(opts.countsPath)
		if err != nil {
			return "", nil, 0, err
		}
		threads := opts.threads
		if threads == 0 {
			threads = len(counts)
		}
		replay := func(context.Context) ([]uint32, error) { return counts, nil }
		return "file", replay, threads, nil
	}

	gen, ok := scenarios[opts.scenario]
	if !ok {
		return "", nil, 0, fmt.Errorf("unknown scenario %q\nvalid: %s", opts.scenario, strings.Join(scenarioNames(), ", "))
	}
	threads := opts.threads
	if threads == 0 {
		threads = defaultThreads
	}
	if threads < 0 {
		return "", nil, 0, fmt.Errorf("--threads must be >= 1")
	}
	rng := rand.New(rand.NewSource(opts.seed))
	simulate := func(context.Context) ([]uint32, error) { return gen(rng, threads), nil }
	return opts.scenario, simulate, threads, nil
}

// readCounts parses whitespace-separated unsigned step counts from path.
func readCounts(path string) ([]uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read counts: %w", err)
	}
	fields := strings.Fields(string(b))
	counts := make([]uint32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("read counts: entry %d %q: %w", i, f, err)
		}
		counts[i] = uint32(v)
	}
	return counts, nil
}

// serveMetrics serves the Prometheus /metrics endpoint on ln until ctx is
// cancelled. It returns nil after a clean shutdown and the serve error
// otherwise.
func serveMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("metrics server shutdown error", "err", err)
		}
	}()

	slog.Info("metrics server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for n := range scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func fill(n int, v uint32) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
