package parse

import "testing"

func TestParseTestOutputPytestRegex(t *testing.T) {
	tc := ParseTestOutput("5 passed, 2 failed in 1.2s", "pytest")
	if !tc.Present {
		t.Fatal("expected present")
	}
	if tc.Value.Passed != 5 || tc.Value.Failed != 2 || tc.Value.Total != 7 {
		t.Fatalf("got %+v", tc.Value)
	}
}

func TestParseTestOutputPytestJSON(t *testing.T) {
	// A "tests" key marks a report whose counts live at the top level.
	tc := ParseTestOutput(`{"tests":[{"nodeid":"test_a"}],"passed":10,"failed":0}`, "pytest")
	if !tc.Present {
		t.Fatal("expected present")
	}
	if tc.Value.Passed != 10 || tc.Value.Failed != 0 || tc.Value.Total != 10 {
		t.Fatalf("got %+v", tc.Value)
	}
}

func TestParseTestOutputPytestJSONExplicitTotal(t *testing.T) {
	tc := ParseTestOutput(`{"summary":{"passed":3,"failed":1,"total":5}}`, "pytest")
	if !tc.Present || tc.Value.Total != 5 {
		t.Fatalf("got %+v present=%v", tc.Value, tc.Present)
	}
}

func TestParseTestOutputNoTestsRan(t *testing.T) {
	tc := ParseTestOutput("collected 0 items\nno tests ran in 0.01s", "pytest")
	if !tc.Present {
		t.Fatal("expected present (empty result)")
	}
	if tc.Value.Passed != 0 || tc.Value.Failed != 0 || tc.Value.Total != 0 {
		t.Fatalf("got %+v", tc.Value)
	}
}

func TestParseTestOutputAbsent(t *testing.T) {
	tc := ParseTestOutput("some unrelated build log", "pytest")
	if tc.Present {
		t.Fatalf("expected absent, got %+v", tc.Value)
	}
}

func TestParseTestOutputUnittestOK(t *testing.T) {
	tc := ParseTestOutput("Ran 12 tests in 0.5s\n\nOK", "unittest")
	if !tc.Present || tc.Value.Passed != 12 || tc.Value.Failed != 0 {
		t.Fatalf("got %+v present=%v", tc.Value, tc.Present)
	}
}

func TestParseTestOutputUnittestFailures(t *testing.T) {
	tc := ParseTestOutput("Ran 12 tests in 0.5s\n\nFAILED (failures=2, errors=1)", "unittest")
	if !tc.Present {
		t.Fatal("expected present")
	}
	if tc.Value.Total != 12 || tc.Value.Failed != 3 || tc.Value.Passed != 9 {
		t.Fatalf("got %+v", tc.Value)
	}
}

func TestParseTestOutputUnknownFrameworkFallsBack(t *testing.T) {
	tc := ParseTestOutput("Ran 4 tests in 0.1s\n\nOK", "")
	if !tc.Present || tc.Value.Total != 4 {
		t.Fatalf("got %+v present=%v", tc.Value, tc.Present)
	}
}

func TestParsePerformanceMetricMilliseconds(t *testing.T) {
	p := ParsePerformanceMetric("123.45 ms")
	if !p.Present {
		t.Fatal("expected present")
	}
	if got := p.Value.Value; got < 0.12344 || got > 0.12346 {
		t.Fatalf("got %v", got)
	}
}

func TestParsePerformanceMetricSeconds(t *testing.T) {
	p := ParsePerformanceMetric("1.5s")
	if !p.Present || p.Value.Value != 1.5 {
		t.Fatalf("got %+v", p)
	}
}

func TestParsePerformanceMetricMinutes(t *testing.T) {
	p := ParsePerformanceMetric("2 min")
	if !p.Present || p.Value.Value != 120 {
		t.Fatalf("got %+v", p)
	}
}

func TestParsePerformanceMetricJSON(t *testing.T) {
	p := ParsePerformanceMetric(`{"duration": 2.5}`)
	if !p.Present || p.Value.Value != 2.5 {
		t.Fatalf("got %+v", p)
	}
}

func TestParsePerformanceMetricJSONMillisecondHeuristic(t *testing.T) {
	p := ParsePerformanceMetric(`{"elapsed": 15000}`)
	if !p.Present || p.Value.Value != 15 {
		t.Fatalf("got %+v", p)
	}
}

func TestParsePerformanceMetricBareNumber(t *testing.T) {
	p := ParsePerformanceMetric("3.2")
	if !p.Present || p.Value.Value != 3.2 {
		t.Fatalf("got %+v", p)
	}
}

func TestParsePerformanceMetricAbsent(t *testing.T) {
	p := ParsePerformanceMetric("no timing info here at all")
	if p.Present {
		t.Fatalf("expected absent, got %+v", p)
	}
}
