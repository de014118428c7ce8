package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/code2api/code2api/internal/adapter/ristretto"
	"github.com/code2api/code2api/internal/domain/source"
	"github.com/code2api/code2api/internal/domain/workflow"
)

// Result is the outcome of analyzing a batch of source units. Per-file
// failures are collected, never aborting the batch. Candidates are sorted
// by (path, line), so identical input yields identical output.
type Result struct {
	Candidates []source.CandidateFunction
	FileErrors []workflow.FileError
	Units      []source.SourceUnit
	Functions  int
	Classes    int
}

// unitResult is the memoized per-file analysis.
type unitResult struct {
	candidates []source.CandidateFunction
	symbols    []source.Symbol
	functions  int
	classes    int
}

// Analyzer extracts API candidate functions from source units. Safe for
// concurrent use; each Parse call creates its own tree-sitter parsers.
type Analyzer struct {
	memo *ristretto.Cache[unitResult]
	log  *slog.Logger
}

// New creates an Analyzer with a parse-memoization budget in bytes.
// Repeated analysis of an identical blob skips re-parsing.
func New(memoBudgetBytes int64, log *slog.Logger) (*Analyzer, error) {
	memo, err := ristretto.New[unitResult](memoBudgetBytes)
	if err != nil {
		return nil, fmt.Errorf("create memo cache: %w", err)
	}
	return &Analyzer{memo: memo, log: log}, nil
}

// Close releases the memoization cache.
func (a *Analyzer) Close() {
	a.memo.Close()
}

// Parse analyzes every unit, collecting candidates and per-file errors.
// The returned units carry their extracted symbols; inputs are not
// mutated.
func (a *Analyzer) Parse(units []source.SourceUnit) Result {
	var res Result
	res.Units = make([]source.SourceUnit, 0, len(units))

	for _, unit := range units {
		ur, ferr := a.parseUnit(unit)
		if ferr != nil {
			a.log.Debug("file analysis failed",
				"path", ferr.Path, "kind", ferr.Kind, "error", ferr.Err)
			res.FileErrors = append(res.FileErrors, *ferr)
			res.Units = append(res.Units, unit)
			continue
		}
		unit.Symbols = ur.symbols
		res.Units = append(res.Units, unit)
		res.Candidates = append(res.Candidates, ur.candidates...)
		res.Functions += ur.functions
		res.Classes += ur.classes
	}

	sort.SliceStable(res.Candidates, func(i, j int) bool {
		if res.Candidates[i].SourcePath != res.Candidates[j].SourcePath {
			return res.Candidates[i].SourcePath < res.Candidates[j].SourcePath
		}
		return res.Candidates[i].Line < res.Candidates[j].Line
	})
	return res
}

func (a *Analyzer) parseUnit(unit source.SourceUnit) (unitResult, *workflow.FileError) {
	lang := Lookup(unit.Language)
	if lang == nil {
		return unitResult{}, &workflow.FileError{
			Path: unit.Path,
			Kind: workflow.FileErrorUnsupportedLanguage,
			Err:  fmt.Sprintf("unsupported language %q", unit.Language),
		}
	}

	key := memoKey(lang.Name, unit.Text)
	if ur, ok := a.memo.Get(key); ok {
		return remapPaths(ur, unit.Path), nil
	}

	parser := lang.NewParser()
	defer parser.Close()

	src := []byte(unit.Text)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return unitResult{}, &workflow.FileError{
			Path: unit.Path,
			Kind: workflow.FileErrorParse,
			Err:  err.Error(),
		}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return unitResult{}, &workflow.FileError{
			Path: unit.Path,
			Kind: workflow.FileErrorParse,
			Err:  "syntax errors in source",
		}
	}

	ur := buildUnitResult(lang.extract(root, src))
	a.memo.Set(key, ur, int64(len(unit.Text)))
	return remapPaths(ur, unit.Path), nil
}

// buildUnitResult applies the candidate rule: every extracted function is
// reported, flagged as an API candidate unless its name starts with an
// underscore or its body has no statements.
func buildUnitResult(fx fileExtract) unitResult {
	var ur unitResult
	classes := map[string]bool{}

	for _, fn := range fx.functions {
		ur.functions++
		if fn.class != "" && !classes[fn.class] {
			classes[fn.class] = true
			ur.classes++
		}

		ur.symbols = append(ur.symbols, source.Symbol{
			Name: fn.name,
			Kind: fn.kind,
			Line: fn.line,
		})

		ur.candidates = append(ur.candidates, source.CandidateFunction{
			Name:           fn.name,
			Params:         fn.params,
			ReturnType:     fn.returnType,
			Docstring:      fn.docstring,
			Class:          fn.class,
			IsAPICandidate: !strings.HasPrefix(fn.name, "_") && fn.statements > 0,
			Summary: source.Summary{
				Text:          fn.docstring,
				ExternalCalls: intersect(fn.calls, fx.imports),
				Constants:     fn.constants,
			},
			Line: fn.line,
		})
	}

	for name := range classes {
		ur.symbols = append(ur.symbols, source.Symbol{Name: name, Kind: source.SymbolClass})
	}
	sort.SliceStable(ur.symbols, func(i, j int) bool {
		if ur.symbols[i].Line != ur.symbols[j].Line {
			return ur.symbols[i].Line < ur.symbols[j].Line
		}
		return ur.symbols[i].Name < ur.symbols[j].Name
	})
	return ur
}

// remapPaths stamps the unit path onto a (possibly memoized) result. The
// memo key is content only, so the same blob under two paths shares one
// parse.
func remapPaths(ur unitResult, path string) unitResult {
	out := ur
	out.candidates = make([]source.CandidateFunction, len(ur.candidates))
	copy(out.candidates, ur.candidates)
	for i := range out.candidates {
		out.candidates[i].SourcePath = path
	}
	return out
}

// intersect returns the calls that resolve to imported names, preserving
// call order.
func intersect(calls, imports []string) []string {
	if len(calls) == 0 || len(imports) == 0 {
		return nil
	}
	imported := make(map[string]bool, len(imports))
	for _, name := range imports {
		imported[name] = true
	}
	var out []string
	for _, call := range calls {
		if imported[call] {
			out = append(out, call)
		}
	}
	return out
}

func memoKey(lang, text string) string {
	h := sha256.New()
	h.Write([]byte(lang))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
