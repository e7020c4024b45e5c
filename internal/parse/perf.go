package parse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/coderefine/engine/internal/model"
)

var (
	msRe      = regexp.MustCompile(`(?i)([\d.]+)\s*ms\b`)
	secRe     = regexp.MustCompile(`(?i)([\d.]+)\s*(?:s|sec|seconds?)\b`)
	minRe     = regexp.MustCompile(`(?i)([\d.]+)\s*(?:m|min|minutes?)\b`)
	bareNumRe = regexp.MustCompile(`^\s*([\d.]+)\s*$`)
)

// perfJSONKeys are, in priority order, the JSON object keys that may carry a
// duration value.
var perfJSONKeys = []string{"time", "duration", "runtime", "elapsed", "seconds"}

// msHeuristicThreshold: JSON numeric values at or above this are assumed to
// be milliseconds rather than seconds.
const msHeuristicThreshold = 10000

// ParsePerformanceMetric extracts a scalar seconds value from raw benchmark
// output. It tries, in order: a JSON object carrying one of the known
// duration keys, a unit-suffixed regex match (ms/s/min), and finally a bare
// numeric line interpreted as seconds.
func ParsePerformanceMetric(raw string) model.OptionalPerf {
	if v, ok := parsePerfJSON(raw); ok {
		return model.OptionalPerf{Value: model.PerfMetric{Value: v, Unit: "seconds"}, Present: true}
	}

	trimmed := strings.TrimSpace(raw)

	if m := msRe.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return model.OptionalPerf{Value: model.PerfMetric{Value: n * 0.001, Unit: "seconds"}, Present: true}
	}
	if m := secRe.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return model.OptionalPerf{Value: model.PerfMetric{Value: n, Unit: "seconds"}, Present: true}
	}
	if m := minRe.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return model.OptionalPerf{Value: model.PerfMetric{Value: n * 60, Unit: "seconds"}, Present: true}
	}
	if m := bareNumRe.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return model.OptionalPerf{Value: model.PerfMetric{Value: n, Unit: "seconds"}, Present: true}
	}

	return model.OptionalPerf{}
}

func parsePerfJSON(raw string) (float64, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return 0, false
	}
	for _, key := range perfJSONKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		n := asFloat(v)
		if n >= msHeuristicThreshold {
			n = n / 1000
		}
		return n, true
	}
	return 0, false
}
