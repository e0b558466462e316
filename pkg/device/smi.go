// Package device reports the GPU a sampling session ran on, as seen by
// nvidia-smi. Every query degrades to a zero value when nvidia-smi is
// missing so reports can still be produced on CPU-only hosts.
package device

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Info describes one visible GPU at the moment of the query.
type Info struct {
	Index         int    `json:"index"`
	Name          string `json:"name"`
	SMClockMHz    int    `json:"sm_clock_mhz"`
	MaxSMClockMHz int    `json:"max_sm_clock_mhz"`
	TempC         int    `json:"temperature_c"`
}

// runSMI is swapped in tests.
var runSMI = func(args ...string) ([]byte, error) {
	return exec.Command("nvidia-smi", args...).Output()
}

// DetectGPUName returns the name of GPU 0 as reported by nvidia-smi, or
// "unknown" if nvidia-smi is unavailable.
func DetectGPUName() string {
	out, err := runSMI("--query-gpu=name", "--format=csv,noheader", "--id=0")
	if err != nil {
		return "unknown"
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return "unknown"
	}
	return name
}

// Query returns one Info per visible GPU in ascending device order.
func Query() ([]Info, error) {
	out, err := runSMI(
		"--query-gpu=index,name,clocks.sm,clocks.max.sm,temperature.gpu",
		"--format=csv,noheader,nounits",
	)
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}
	return parseQuery(string(out))
}

func parseQuery(out string) ([]Info, error) {
	num := func(s string) int {
		s = strings.TrimSpace(s)
		if s == "N/A" || s == "[N/A]" {
			return 0
		}
		v, _ := strconv.Atoi(s)
		return v
	}

	var result []Info
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ", ")
		if len(fields) != 5 {
			return nil, fmt.Errorf("nvidia-smi: unexpected field count in %q", line)
		}
		result = append(result, Info{
			Index:         num(fields[0]),
			Name:          strings.TrimSpace(fields[1]),
			SMClockMHz:    num(fields[2]),
			MaxSMClockMHz: num(fields[3]),
			TempC:         num(fields[4]),
		})
	}
	return result, nil
}
