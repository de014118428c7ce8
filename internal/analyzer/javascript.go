package analyzer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/code2api/code2api/internal/domain/source"
)

func init() {
	languages["javascript"] = &Language{
		Name:       "javascript",
		Extensions: []string{".js", ".mjs", ".cjs"},
		lang:       javascript.GetLanguage(),
		extract:    jsExtract,
	}
}

func jsExtract(root *sitter.Node, src []byte) fileExtract {
	var out fileExtract

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if node.Type() == "export_statement" {
			if decl := node.ChildByFieldName("declaration"); decl != nil {
				node = decl
			}
		}
		switch node.Type() {
		case "import_statement":
			out.imports = jsImports(node, src, out.imports)
		case "function_declaration":
			if fn, ok := jsFunction(node, src, ""); ok {
				out.functions = append(out.functions, fn)
			}
		case "class_declaration":
			out.functions = append(out.functions, jsMethods(node, src)...)
		case "lexical_declaration", "variable_declaration":
			out.imports = jsRequires(node, src, out.imports)
		}
	}
	return out
}

func jsImports(node *sitter.Node, src []byte, imports []string) []string {
	walk(node, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_specifier":
			name := n.ChildByFieldName("name")
			if alias := n.ChildByFieldName("alias"); alias != nil {
				name = alias
			}
			if name != nil {
				imports = appendUnique(imports, nodeText(name, src))
			}
			return false
		case "namespace_import":
			if int(n.NamedChildCount()) > 0 {
				imports = appendUnique(imports, nodeText(n.NamedChild(0), src))
			}
			return false
		case "import_clause":
			// A bare identifier child is the default import.
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if c := n.NamedChild(i); c.Type() == "identifier" {
					imports = appendUnique(imports, nodeText(c, src))
				}
			}
			return true
		}
		return true
	})
	return imports
}

// jsRequires picks up `const x = require("...")` bindings.
func jsRequires(node *sitter.Node, src []byte, imports []string) []string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		decl := node.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		name := decl.ChildByFieldName("name")
		value := decl.ChildByFieldName("value")
		if name == nil || value == nil || name.Type() != "identifier" || value.Type() != "call_expression" {
			continue
		}
		if fn := value.ChildByFieldName("function"); fn != nil && nodeText(fn, src) == "require" {
			imports = appendUnique(imports, nodeText(name, src))
		}
	}
	return imports
}

func jsMethods(class *sitter.Node, src []byte) []rawFunction {
	className := ""
	if n := class.ChildByFieldName("name"); n != nil {
		className = nodeText(n, src)
	}
	body := class.ChildByFieldName("body")
	if body == nil {
		return nil
	}

	var out []rawFunction
	for i := 0; i < int(body.NamedChildCount()); i++ {
		node := body.NamedChild(i)
		if node.Type() != "method_definition" {
			continue
		}
		if fn, ok := jsFunction(node, src, className); ok && fn.name != "constructor" {
			out = append(out, fn)
		}
	}
	return out
}

func jsFunction(node *sitter.Node, src []byte, class string) (rawFunction, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return rawFunction{}, false
	}

	fn := rawFunction{
		name:  nodeText(nameNode, src),
		class: class,
		kind:  source.SymbolFunction,
		line:  int(node.StartPoint().Row) + 1,
	}
	if class != "" {
		fn.kind = source.SymbolMethod
	}

	if params := node.ChildByFieldName("parameters"); params != nil {
		fn.params = jsParams(params, src)
	}

	body := node.ChildByFieldName("body")
	if body != nil {
		fn.statements = countStatements(body)
		fn.calls, fn.constants = jsBodyScan(body, src)
	}
	return fn, true
}

func jsParams(params *sitter.Node, src []byte) []source.Param {
	var out []source.Param
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		switch child.Type() {
		case "identifier":
			out = append(out, source.Param{Name: nodeText(child, src)})
		case "assignment_pattern":
			p := source.Param{}
			if left := child.ChildByFieldName("left"); left != nil {
				p.Name = nodeText(left, src)
			}
			if right := child.ChildByFieldName("right"); right != nil {
				p.Default = nodeText(right, src)
			}
			if p.Name != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func jsBodyScan(body *sitter.Node, src []byte) (calls, constants []string) {
	walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "call_expression":
			if fn := n.ChildByFieldName("function"); fn != nil {
				calls = appendUnique(calls, jsCallBase(fn, src))
			}
		case "number":
			if text := nodeText(n, src); businessNumber(text) {
				constants = appendUnique(constants, text)
			}
		case "template_string":
			constants = appendUnique(constants, nodeText(n, src))
			return false
		case "string":
			if text := nodeText(n, src); businessString(text) {
				constants = appendUnique(constants, strings.Trim(text, `"'`))
			}
			return false
		case "function_declaration", "function_expression", "arrow_function":
			return false
		}
		return true
	})
	return calls, constants
}

func jsCallBase(fn *sitter.Node, src []byte) string {
	for fn != nil {
		switch fn.Type() {
		case "identifier":
			return nodeText(fn, src)
		case "member_expression":
			fn = fn.ChildByFieldName("object")
		case "call_expression":
			fn = fn.ChildByFieldName("function")
		default:
			return ""
		}
	}
	return ""
}

// countStatements counts named statements in a block, ignoring comments.
func countStatements(body *sitter.Node) int {
	n := 0
	for i := 0; i < int(body.NamedChildCount()); i++ {
		if body.NamedChild(i).Type() == "comment" {
			continue
		}
		n++
	}
	return n
}
