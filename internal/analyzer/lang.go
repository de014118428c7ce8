// Package analyzer extracts API candidate functions from source units using
// tree-sitter grammars. Parsing is deterministic: identical input yields an
// identical candidate list.
package analyzer

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/code2api/code2api/internal/domain/source"
)

// fileExtract is the raw result of walking one parsed file.
type fileExtract struct {
	functions []rawFunction
	imports   []string
}

// rawFunction is one function or method definition before the candidate
// rule is applied.
type rawFunction struct {
	name       string
	class      string
	kind       source.SymbolKind
	params     []source.Param
	returnType string
	docstring  string
	statements int
	calls      []string
	constants  []string
	line       int
}

// Language binds a tag to its grammar and extraction walk.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language
	extract    func(root *sitter.Node, src []byte) fileExtract
}

// NewParser creates a parser for this language. Parsers are not safe for
// concurrent use; each caller gets its own.
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// languages maps language tags to their configuration. Populated by init()
// functions in the per-language files.
var languages = map[string]*Language{}

var extensionMap map[string]string
var extensionOnce sync.Once

// Lookup returns the language for a tag, or nil when unsupported.
func Lookup(tag string) *Language {
	return languages[strings.ToLower(tag)]
}

// DetectLanguage maps a file path to a language tag by extension, or ""
// when unsupported.
func DetectLanguage(path string) string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap[strings.ToLower(filepath.Ext(path))]
}

// SupportedLanguages returns the registered language tags.
func SupportedLanguages() []string {
	out := make([]string, 0, len(languages))
	for tag := range languages {
		out = append(out, tag)
	}
	return out
}

func nodeText(n *sitter.Node, src []byte) string {
	return string(src[n.StartByte():n.EndByte()])
}

// walk visits named nodes depth-first. fn returns false to skip a node's
// children.
func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}

// appendUnique appends s to list unless already present, preserving
// first-seen order so output is deterministic.
func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}

var httpMethodTokens = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}

// businessNumber reports whether a numeric literal looks like a business
// rule rather than structural code (0 and 1 are noise).
func businessNumber(text string) bool {
	switch strings.TrimSuffix(text, ".0") {
	case "0", "1", "-1", "0.", "1.":
		return false
	}
	return true
}

// businessString reports whether a string literal looks meaningful: a
// template, a format string, or an HTTP method token.
func businessString(text string) bool {
	if strings.Contains(text, "{") && strings.Contains(text, "}") {
		return true
	}
	if strings.Contains(text, "%s") || strings.Contains(text, "%d") {
		return true
	}
	for _, tok := range httpMethodTokens {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}
