package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justin-oleary/warpstat/pkg/warp"
)

func TestScenarios(t *testing.T) {
	t.Parallel()

	cases := []struct {
		scenario       string
		wantAvgStep    float64
		wantAvgMaxWarp float64
	}{
		// 1000 threads = 31 full warps + 8 lanes.
		{scenario: "uniform", wantAvgStep: baseSteps, wantAvgMaxWarp: baseSteps},
		{scenario: "tail", wantAvgStep: (1000*baseSteps + 31*9*baseSteps) / 1000.0, wantAvgMaxWarp: (31*10*baseSteps + baseSteps) / 32.0},
		{scenario: "partial-warp", wantAvgStep: (992*baseSteps + 8*4*baseSteps) / 1000.0, wantAvgMaxWarp: (31*baseSteps + 4*baseSteps) / 32.0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()

			counts := scenarios[tc.scenario](rand.New(rand.NewSource(1)), defaultThreads)
			require.Len(t, counts, defaultThreads)

			got, err := warp.Aggregate(counts, len(counts))
			require.NoError(t, err)
			assert.InDelta(t, tc.wantAvgStep, got.AvgStep, 1e-9)
			assert.InDelta(t, tc.wantAvgMaxWarp, got.AvgMaxWarp, 1e-9)
		})
	}
}

func TestDivergentScenarioIsSeeded(t *testing.T) {
	t.Parallel()

	gen := scenarios["divergent"]
	a := gen(rand.New(rand.NewSource(7)), 256)
	b := gen(rand.New(rand.NewSource(7)), 256)
	assert.Equal(t, a, b)
	for _, c := range a {
		assert.Less(t, c, uint32(2*baseSteps))
	}

	got, err := warp.Aggregate(a, len(a))
	require.NoError(t, err)
	assert.Less(t, got.Efficiency(), 1.0)
}

func TestBuildKernel(t *testing.T) {
	t.Parallel()

	t.Run("unknown scenario", func(t *testing.T) {
		t.Parallel()
		_, _, _, err := buildKernel(options{scenario: "nope"})
		require.ErrorContains(t, err, "unknown scenario")
	})

	t.Run("negative threads", func(t *testing.T) {
		t.Parallel()
		_, _, _, err := buildKernel(options{scenario: "uniform", threads: -4})
		require.Error(t, err)
	})

	t.Run("scenario defaults", func(t *testing.T) {
		t.Parallel()
		name, k, threads, err := buildKernel(options{scenario: "uniform", seed: 1})
		require.NoError(t, err)
		assert.Equal(t, "uniform", name)
		assert.Equal(t, defaultThreads, threads)
		counts, err := k(context.Background())
		require.NoError(t, err)
		assert.Len(t, counts, defaultThreads)
	})

	t.Run("counts file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "counts.txt")
		require.NoError(t, os.WriteFile(path, []byte("1 2 3\n4\t5\n"), 0o600))

		name, k, threads, err := buildKernel(options{countsPath: path})
		require.NoError(t, err)
		assert.Equal(t, "file", name)
		assert.Equal(t, 5, threads)
		counts, err := k(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []uint32{1, 2, 3, 4, 5}, counts)
	})
}

func TestReadCountsRejectsMalformedEntries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
	}{
		{name: "negative", input: "1 -2 3"},
		{name: "fractional", input: "1 1.5 3"},
		{name: "trailing garbage", input: "1 12abc 3"},
		{name: "hex prefix", input: "1 0x10 3"},
		{name: "exceeds uint32", input: "1 4294967296 3"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "counts.txt")
			require.NoError(t, os.WriteFile(path, []byte(tc.input), 0o600))
			counts, err := readCounts(path)
			require.ErrorContains(t, err, "entry 1")
			assert.Nil(t, counts)
		})
	}

	path := filepath.Join(t.TempDir(), "counts.txt")
	require.NoError(t, os.WriteFile(path, []byte("0 007 4294967295"), 0o600))
	counts, err := readCounts(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 7, 4294967295}, counts)

	_, err = readCounts(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestRunWritesReport(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := run(context.Background(), &out, options{
		scenario: "partial-warp",
		threads:  40,
		runs:     2,
		seed:     3,
		perWarp:  true,
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))

	// sampler.Report fields sit at the top level next to the run context.
	assert.Equal(t, "partial-warp", got["scenario"])
	assert.Equal(t, "partial-warp", got["kernel"])
	assert.Equal(t, 40.0, got["threads"])
	assert.Equal(t, 2.0, got["warps"])
	assert.Equal(t, 32.0, got["warp_size"])
	assert.Equal(t, 3.0, got["seed"])
	assert.Len(t, got["runs"], 2)
	assert.Equal(t, []any{1000.0, 4000.0}, got["per_warp_max"])

	mean, ok := got["mean"].(map[string]any)
	require.True(t, ok, "mean is an object")
	assert.InDelta(t, (32*baseSteps+8*4*baseSteps)/40.0, mean["avg_step"], 1e-9)
	assert.InDelta(t, (baseSteps+4*baseSteps)/2.0, mean["avg_max_warp"], 1e-9)
	assert.Contains(t, mean, "run_time_ms")
	assert.Contains(t, got, "warp_efficiency")
	assert.Contains(t, got, "timestamp")
}

func TestRunOmitsPerWarpByDefault(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), &out, options{scenario: "uniform", threads: 64, runs: 1}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.NotContains(t, got, "per_warp_max")
}

func TestRunFailsWhenMetricsPortIsBusy(t *testing.T) {
	t.Parallel()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	var out bytes.Buffer
	err = run(context.Background(), &out, options{
		scenario:    "uniform",
		runs:        1,
		metricsAddr: busy.Addr().String(),
	})
	require.ErrorContains(t, err, "metrics listener")
	assert.Zero(t, out.Len(), "no report when the metrics endpoint cannot start")
}

func TestRunServesMetricsUntilCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	w := &cancelOnWrite{cancel: cancel}
	go func() {
		done <- run(ctx, w, options{scenario: "uniform", runs: 1, metricsAddr: "127.0.0.1:0"})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.NotZero(t, w.buf.Len())
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

// cancelOnWrite cancels the run's context once the report has been written,
// standing in for SIGINT.
type cancelOnWrite struct {
	buf    bytes.Buffer
	cancel context.CancelFunc
}

func (c *cancelOnWrite) Write(p []byte) (int, error) {
	defer c.cancel()
	return c.buf.Write(p)
}
