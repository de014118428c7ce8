package analyzer

import (
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/code2api/code2api/internal/domain/source"
)

func init() {
	languages["go"] = &Language{
		Name:       "go",
		Extensions: []string{".go"},
		lang:       golang.GetLanguage(),
		extract:    goExtract,
	}
}

func goExtract(root *sitter.Node, src []byte) fileExtract {
	var out fileExtract

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "import_declaration":
			out.imports = goImports(node, src, out.imports)
		case "function_declaration":
			if fn, ok := goFunction(node, src); ok {
				out.functions = append(out.functions, fn)
			}
		case "method_declaration":
			if fn, ok := goMethod(node, src); ok {
				out.functions = append(out.functions, fn)
			}
		}
	}
	return out
}

func goImports(node *sitter.Node, src []byte, imports []string) []string {
	walk(node, func(n *sitter.Node) bool {
		if n.Type() != "import_spec" {
			return true
		}
		if name := n.ChildByFieldName("name"); name != nil {
			imports = appendUnique(imports, nodeText(name, src))
			return false
		}
		if p := n.ChildByFieldName("path"); p != nil {
			imports = appendUnique(imports, path.Base(strings.Trim(nodeText(p, src), `"`)))
		}
		return false
	})
	return imports
}

func goFunction(node *sitter.Node, src []byte) (rawFunction, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return rawFunction{}, false
	}

	fn := rawFunction{
		name: nodeText(nameNode, src),
		kind: source.SymbolFunction,
		line: int(node.StartPoint().Row) + 1,
	}
	goFillShape(&fn, node, src)
	return fn, true
}

func goMethod(node *sitter.Node, src []byte) (rawFunction, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return rawFunction{}, false
	}

	fn := rawFunction{
		name:  nodeText(nameNode, src),
		class: goReceiverType(node, src),
		kind:  source.SymbolMethod,
		line:  int(node.StartPoint().Row) + 1,
	}
	goFillShape(&fn, node, src)
	return fn, true
}

func goFillShape(fn *rawFunction, node *sitter.Node, src []byte) {
	if params := node.ChildByFieldName("parameters"); params != nil {
		fn.params = goParams(params, src)
	}
	if result := node.ChildByFieldName("result"); result != nil {
		fn.returnType = nodeText(result, src)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		fn.statements = countStatements(body)
		fn.calls, fn.constants = goBodyScan(body, src)
	}
}

func goReceiverType(node *sitter.Node, src []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil || int(recv.NamedChildCount()) == 0 {
		return ""
	}
	decl := recv.NamedChild(0)
	typ := decl.ChildByFieldName("type")
	if typ == nil {
		return ""
	}
	return strings.TrimPrefix(nodeText(typ, src), "*")
}

func goParams(params *sitter.Node, src []byte) []source.Param {
	var out []source.Param
	for i := 0; i < int(params.NamedChildCount()); i++ {
		decl := params.NamedChild(i)
		if decl.Type() != "parameter_declaration" && decl.Type() != "variadic_parameter_declaration" {
			continue
		}
		typeText := ""
		if typ := decl.ChildByFieldName("type"); typ != nil {
			typeText = nodeText(typ, src)
		}
		named := false
		for j := 0; j < int(decl.NamedChildCount()); j++ {
			child := decl.NamedChild(j)
			if child.Type() == "identifier" {
				named = true
				out = append(out, source.Param{Name: nodeText(child, src), Type: typeText})
			}
		}
		if !named && typeText != "" {
			out = append(out, source.Param{Type: typeText})
		}
	}
	return out
}

func goBodyScan(body *sitter.Node, src []byte) (calls, constants []string) {
	walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "call_expression":
			if fn := n.ChildByFieldName("function"); fn != nil {
				calls = appendUnique(calls, goCallBase(fn, src))
			}
		case "int_literal", "float_literal":
			if text := nodeText(n, src); businessNumber(text) {
				constants = appendUnique(constants, text)
			}
		case "interpreted_string_literal", "raw_string_literal":
			if text := nodeText(n, src); businessString(text) {
				constants = appendUnique(constants, strings.Trim(text, "`\""))
			}
			return false
		case "func_literal":
			return false
		}
		return true
	})
	return calls, constants
}

func goCallBase(fn *sitter.Node, src []byte) string {
	for fn != nil {
		switch fn.Type() {
		case "identifier":
			return nodeText(fn, src)
		case "selector_expression":
			fn = fn.ChildByFieldName("operand")
		case "call_expression":
			fn = fn.ChildByFieldName("function")
		default:
			return ""
		}
	}
	return ""
}
