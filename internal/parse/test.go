// Package parse extracts structured signals from probe output: test
// pass/fail/total counts and performance seconds. Every function here is
// pure -- same input always yields the same output, no I/O.
package parse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/coderefine/engine/internal/model"
)

var (
	pytestPassedRe = regexp.MustCompile(`(\d+)\s+passed`)
	pytestFailedRe = regexp.MustCompile(`(\d+)\s+failed`)
	unittestRanRe  = regexp.MustCompile(`Ran (\d+) test`)
	unittestFailRe = regexp.MustCompile(`failures=(\d+)`)
	unittestErrRe  = regexp.MustCompile(`errors=(\d+)`)
)

// ParseTestOutput extracts {passed, failed, total} from raw test output.
// framework selects the parsing strategy; "pytest" and "unittest" are
// recognized, anything else tries pytest then falls back to unittest.
func ParseTestOutput(raw, framework string) model.OptionalTestCounts {
	switch framework {
	case "unittest":
		if tc, ok := parseUnittest(raw); ok {
			return model.OptionalTestCounts{Value: tc, Present: true}
		}
		return model.OptionalTestCounts{}
	case "pytest":
		if tc, ok := parsePytest(raw); ok {
			return model.OptionalTestCounts{Value: tc, Present: true}
		}
		return model.OptionalTestCounts{}
	default:
		if tc, ok := parsePytest(raw); ok {
			return model.OptionalTestCounts{Value: tc, Present: true}
		}
		if tc, ok := parseUnittest(raw); ok {
			return model.OptionalTestCounts{Value: tc, Present: true}
		}
		return model.OptionalTestCounts{}
	}
}

// parsePytest tries, in order: JSON summary, "N passed"/"N failed" regex
// extraction, and the "no tests ran"/"no tests collected" empty case.
func parsePytest(raw string) (model.TestCounts, bool) {
	if tc, ok := parsePytestJSON(raw); ok {
		return tc, true
	}

	passedM := pytestPassedRe.FindStringSubmatch(raw)
	failedM := pytestFailedRe.FindStringSubmatch(raw)
	if passedM != nil || failedM != nil {
		passed := atoiOr(passedM, 0)
		failed := atoiOr(failedM, 0)
		return model.TestCounts{Passed: passed, Failed: failed, Total: passed + failed}, true
	}

	lower := strings.ToLower(raw)
	if strings.Contains(lower, "no tests ran") || strings.Contains(lower, "no tests collected") {
		return model.TestCounts{}, true
	}

	return model.TestCounts{}, false
}

// parsePytestJSON attempts to read raw as a JSON object carrying
// passed/failed/total counts. An object with a "tests" key (e.g.
// pytest-json-report, where "tests" is the per-test array) carries its
// counts at the top level; an object with a "summary" key carries them
// inside the sub-object.
func parsePytestJSON(raw string) (model.TestCounts, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return model.TestCounts{}, false
	}

	counts := obj
	if _, ok := obj["tests"]; ok {
		// counts stay top-level
	} else if v, ok := obj["summary"]; ok {
		sub, ok := v.(map[string]any)
		if !ok {
			return model.TestCounts{}, false
		}
		counts = sub
	} else {
		return model.TestCounts{}, false
	}

	passed := intField(counts, "passed")
	failed := intField(counts, "failed")
	total, hasTotal := counts["total"]
	if !hasTotal {
		return model.TestCounts{Passed: passed, Failed: failed, Total: passed + failed}, true
	}
	return model.TestCounts{Passed: passed, Failed: failed, Total: int(asFloat(total))}, true
}

func intField(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	return int(asFloat(v))
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

// parseUnittest looks for "Ran N test" as the anchor; without it the
// output is absent. Failures/errors are read from a trailing
// "FAILED (failures=N, errors=M)" line; a bare "OK" implies all passed.
func parseUnittest(raw string) (model.TestCounts, bool) {
	ranM := unittestRanRe.FindStringSubmatch(raw)
	if ranM == nil {
		return model.TestCounts{}, false
	}
	total, _ := strconv.Atoi(ranM[1])

	failed := 0
	if failM := unittestFailRe.FindStringSubmatch(raw); failM != nil {
		n, _ := strconv.Atoi(failM[1])
		failed += n
	}
	if errM := unittestErrRe.FindStringSubmatch(raw); errM != nil {
		n, _ := strconv.Atoi(errM[1])
		failed += n
	}

	if failed > total {
		failed = total
	}
	return model.TestCounts{Passed: total - failed, Failed: failed, Total: total}, true
}

func atoiOr(m []string, def int) int {
	if m == nil {
		return def
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return def
	}
	return n
}
