package analyzer

import (
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/code2api/code2api/internal/domain/source"
	"github.com/code2api/code2api/internal/domain/workflow"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := New(1<<20, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Close)
	return a
}

const bmiSource = `import math
import requests

def calculate_bmi(weight: float, height: float) -> float:
    """Compute body mass index from weight and height."""
    if height <= 0:
        raise ValueError("height must be positive")
    return weight / math.pow(height, 2)

def classify_bmi(bmi, threshold=25):
    """Classify a BMI value against the overweight threshold."""
    requests.post("https://example.com/audit", json={"bmi": bmi})
    if bmi >= threshold:
        return "overweight"
    return "normal"

def _helper(x):
    return x * 2
`

func TestAnalyzePythonCandidates(t *testing.T) {
	a := newTestAnalyzer(t)

	res := a.Parse([]source.SourceUnit{{Path: "bmi.py", Language: "python", Text: bmiSource}})
	if len(res.FileErrors) != 0 {
		t.Fatalf("unexpected file errors: %+v", res.FileErrors)
	}
	if len(res.Candidates) != 3 {
		t.Fatalf("expected 3 parsed functions, got %d", len(res.Candidates))
	}

	api := 0
	for _, c := range res.Candidates {
		if c.IsAPICandidate {
			api++
		}
		if c.SourcePath != "bmi.py" {
			t.Errorf("candidate %s has wrong source path %q", c.Name, c.SourcePath)
		}
	}
	if api != 2 {
		t.Fatalf("expected exactly 2 API candidates, got %d", api)
	}

	first := res.Candidates[0]
	if first.Name != "calculate_bmi" {
		t.Fatalf("expected calculate_bmi first, got %s", first.Name)
	}
	if first.Docstring != "Compute body mass index from weight and height." {
		t.Errorf("unexpected docstring %q", first.Docstring)
	}
	if len(first.Params) != 2 || first.Params[0].Type != "float" {
		t.Errorf("unexpected params %+v", first.Params)
	}
	if first.ReturnType != "float" {
		t.Errorf("unexpected return type %q", first.ReturnType)
	}
	if !reflect.DeepEqual(first.Summary.ExternalCalls, []string{"math"}) {
		t.Errorf("unexpected external calls %v", first.Summary.ExternalCalls)
	}

	second := res.Candidates[1]
	if second.Name != "classify_bmi" {
		t.Fatalf("expected classify_bmi second, got %s", second.Name)
	}
	if len(second.Params) != 2 || second.Params[1].Default != "25" {
		t.Errorf("unexpected params %+v", second.Params)
	}
	if !reflect.DeepEqual(second.Summary.ExternalCalls, []string{"requests"}) {
		t.Errorf("unexpected external calls %v", second.Summary.ExternalCalls)
	}

	helper := res.Candidates[2]
	if helper.Name != "_helper" || helper.IsAPICandidate {
		t.Errorf("expected _helper excluded from candidates, got %+v", helper)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	units := []source.SourceUnit{{Path: "bmi.py", Language: "python", Text: bmiSource}}

	a1 := newTestAnalyzer(t)
	a2 := newTestAnalyzer(t)

	first := a1.Parse(units)
	for i := 0; i < 3; i++ {
		again := a1.Parse(units)
		if !reflect.DeepEqual(first.Candidates, again.Candidates) {
			t.Fatalf("same analyzer not deterministic on run %d", i)
		}
	}
	fresh := a2.Parse(units)
	if !reflect.DeepEqual(first.Candidates, fresh.Candidates) {
		t.Fatal("fresh analyzer produced different candidates")
	}
}

func TestAnalyzeUnsupportedLanguage(t *testing.T) {
	a := newTestAnalyzer(t)

	res := a.Parse([]source.SourceUnit{
		{Path: "main.rs", Language: "rust", Text: "fn main() {}"},
		{Path: "ok.py", Language: "python", Text: "def f():\n    return 1\n"},
	})

	if len(res.FileErrors) != 1 {
		t.Fatalf("expected 1 file error, got %d", len(res.FileErrors))
	}
	fe := res.FileErrors[0]
	if fe.Kind != workflow.FileErrorUnsupportedLanguage || fe.Path != "main.rs" {
		t.Errorf("unexpected file error %+v", fe)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("expected the batch to continue past the bad file, got %d candidates", len(res.Candidates))
	}
}

func TestAnalyzeParseError(t *testing.T) {
	a := newTestAnalyzer(t)

	res := a.Parse([]source.SourceUnit{
		{Path: "broken.py", Language: "python", Text: "def broken(:\n    pass\n"},
	})

	if len(res.FileErrors) != 1 || res.FileErrors[0].Kind != workflow.FileErrorParse {
		t.Fatalf("expected parse error, got %+v", res.FileErrors)
	}
}

func TestAnalyzeNestedFunctionsExcluded(t *testing.T) {
	a := newTestAnalyzer(t)

	src := `def outer():
    def inner():
        return 1
    square = lambda x: x * x
    return inner() + square(2)
`
	res := a.Parse([]source.SourceUnit{{Path: "f.py", Language: "python", Text: src}})
	if len(res.Candidates) != 1 || res.Candidates[0].Name != "outer" {
		t.Fatalf("expected only outer, got %+v", res.Candidates)
	}
}

func TestAnalyzeEmptyBodyNotCandidate(t *testing.T) {
	a := newTestAnalyzer(t)

	src := `def stub():
    pass

def documented_stub():
    """Placeholder."""
    pass
`
	res := a.Parse([]source.SourceUnit{{Path: "s.py", Language: "python", Text: src}})
	for _, c := range res.Candidates {
		if c.IsAPICandidate {
			t.Errorf("expected %s excluded for empty body", c.Name)
		}
	}
}

func TestAnalyzeClassMethods(t *testing.T) {
	a := newTestAnalyzer(t)

	src := `class Store:
    def save(self, item):
        self.items.append(item)

    def _flush(self):
        self.items = []
`
	res := a.Parse([]source.SourceUnit{{Path: "store.py", Language: "python", Text: src}})
	if len(res.Candidates) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(res.Candidates))
	}
	save := res.Candidates[0]
	if save.Class != "Store" {
		t.Errorf("expected class Store, got %q", save.Class)
	}
	if len(save.Params) != 1 || save.Params[0].Name != "item" {
		t.Errorf("expected self stripped, got %+v", save.Params)
	}
	if res.Classes != 1 {
		t.Errorf("expected 1 class counted, got %d", res.Classes)
	}
}

func TestAnalyzeJavaScript(t *testing.T) {
	a := newTestAnalyzer(t)

	src := `import axios from "axios";

export function fetchUser(id) {
  return axios.get("/api/users/" + id);
}

function _internal() {
  return 42;
}
`
	res := a.Parse([]source.SourceUnit{{Path: "user.js", Language: "javascript", Text: src}})
	if len(res.Candidates) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(res.Candidates))
	}
	fetch := res.Candidates[0]
	if fetch.Name != "fetchUser" || !fetch.IsAPICandidate {
		t.Errorf("unexpected first candidate %+v", fetch)
	}
	if !reflect.DeepEqual(fetch.Summary.ExternalCalls, []string{"axios"}) {
		t.Errorf("unexpected external calls %v", fetch.Summary.ExternalCalls)
	}
	if res.Candidates[1].IsAPICandidate {
		t.Error("expected _internal excluded")
	}
}

func TestAnalyzeGo(t *testing.T) {
	a := newTestAnalyzer(t)

	src := `package pricing

import "strings"

func Discount(price float64, code string) float64 {
	if strings.HasPrefix(code, "VIP") {
		return price * 0.8
	}
	return price
}
`
	res := a.Parse([]source.SourceUnit{{Path: "pricing.go", Language: "go", Text: src}})
	if len(res.Candidates) != 1 {
		t.Fatalf("expected 1 function, got %d", len(res.Candidates))
	}
	c := res.Candidates[0]
	if c.Name != "Discount" || !c.IsAPICandidate {
		t.Errorf("unexpected candidate %+v", c)
	}
	if len(c.Params) != 2 || c.Params[0].Type != "float64" {
		t.Errorf("unexpected params %+v", c.Params)
	}
	if !reflect.DeepEqual(c.Summary.ExternalCalls, []string{"strings"}) {
		t.Errorf("unexpected external calls %v", c.Summary.ExternalCalls)
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a/b/app.py", "python"},
		{"index.js", "javascript"},
		{"main.go", "go"},
		{"README.md", ""},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.path); got != tt.want {
			t.Errorf("DetectLanguage(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestSymbolsPopulated(t *testing.T) {
	a := newTestAnalyzer(t)

	res := a.Parse([]source.SourceUnit{{Path: "bmi.py", Language: "python", Text: bmiSource}})
	if len(res.Units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(res.Units))
	}
	if len(res.Units[0].Symbols) != 3 {
		t.Fatalf("expected 3 symbols, got %+v", res.Units[0].Symbols)
	}
}
