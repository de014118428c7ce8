package analyzer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/code2api/code2api/internal/domain/source"
)

func init() {
	languages["python"] = &Language{
		Name:       "python",
		Extensions: []string{".py"},
		lang:       python.GetLanguage(),
		extract:    pythonExtract,
	}
}

// pythonExtract walks module-level definitions only: top-level functions
// and class methods. Nested functions and lambdas are never candidates.
func pythonExtract(root *sitter.Node, src []byte) fileExtract {
	var out fileExtract

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "import_statement", "import_from_statement":
			out.imports = pythonImports(node, src, out.imports)
		case "function_definition":
			if fn, ok := pythonFunction(node, src, ""); ok {
				out.functions = append(out.functions, fn)
			}
		case "decorated_definition":
			if def := node.ChildByFieldName("definition"); def != nil {
				switch def.Type() {
				case "function_definition":
					if fn, ok := pythonFunction(def, src, ""); ok {
						out.functions = append(out.functions, fn)
					}
				case "class_definition":
					out.functions = append(out.functions, pythonMethods(def, src)...)
				}
			}
		case "class_definition":
			out.functions = append(out.functions, pythonMethods(node, src)...)
		}
	}
	return out
}

func pythonImports(node *sitter.Node, src []byte, imports []string) []string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			// The module in import_from is a field, not an imported name.
			if node.Type() == "import_from_statement" && child.Equal(node.ChildByFieldName("module_name")) {
				continue
			}
			name := nodeText(child, src)
			if dot := strings.IndexByte(name, '.'); dot >= 0 {
				name = name[:dot]
			}
			imports = appendUnique(imports, name)
		case "aliased_import":
			if alias := child.ChildByFieldName("alias"); alias != nil {
				imports = appendUnique(imports, nodeText(alias, src))
			}
		}
	}
	return imports
}

func pythonMethods(class *sitter.Node, src []byte) []rawFunction {
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
		if node.Type() == "decorated_definition" {
			node = node.ChildByFieldName("definition")
			if node == nil {
				continue
			}
		}
		if node.Type() != "function_definition" {
			continue
		}
		if fn, ok := pythonFunction(node, src, className); ok {
			out = append(out, fn)
		}
	}
	return out
}

func pythonFunction(node *sitter.Node, src []byte, class string) (rawFunction, bool) {
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
		fn.params = pythonParams(params, src, class != "")
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		fn.returnType = nodeText(ret, src)
	}

	body := node.ChildByFieldName("body")
	if body != nil {
		fn.docstring, fn.statements = pythonBodyShape(body, src)
		fn.calls, fn.constants = pythonBodyScan(body, src)
	}
	return fn, true
}

func pythonParams(params *sitter.Node, src []byte, isMethod bool) []source.Param {
	var out []source.Param
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		var p source.Param
		switch child.Type() {
		case "identifier":
			p.Name = nodeText(child, src)
		case "typed_parameter":
			if int(child.NamedChildCount()) > 0 {
				p.Name = nodeText(child.NamedChild(0), src)
			}
			if typ := child.ChildByFieldName("type"); typ != nil {
				p.Type = nodeText(typ, src)
			}
		case "default_parameter", "typed_default_parameter":
			if n := child.ChildByFieldName("name"); n != nil {
				p.Name = nodeText(n, src)
			}
			if typ := child.ChildByFieldName("type"); typ != nil {
				p.Type = nodeText(typ, src)
			}
			if val := child.ChildByFieldName("value"); val != nil {
				p.Default = nodeText(val, src)
			}
		default:
			continue
		}
		if p.Name == "" {
			continue
		}
		if isMethod && (p.Name == "self" || p.Name == "cls") {
			continue
		}
		out = append(out, p)
	}
	return out
}

// pythonBodyShape returns the docstring and the count of meaningful
// statements. A docstring expression and bare pass do not count, so a stub
// body has zero statements.
func pythonBodyShape(body *sitter.Node, src []byte) (string, int) {
	docstring := ""
	statements := 0
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		switch child.Type() {
		case "comment":
			continue
		case "pass_statement":
			continue
		case "expression_statement":
			if i == 0 && int(child.NamedChildCount()) == 1 && child.NamedChild(0).Type() == "string" {
				docstring = pythonStringContent(nodeText(child.NamedChild(0), src))
				continue
			}
		}
		statements++
	}
	return docstring, statements
}

// pythonBodyScan collects called base names and business-looking literals.
func pythonBodyScan(body *sitter.Node, src []byte) (calls, constants []string) {
	walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "call":
			if fn := n.ChildByFieldName("function"); fn != nil {
				calls = appendUnique(calls, pythonCallBase(fn, src))
			}
		case "integer", "float":
			if text := nodeText(n, src); businessNumber(text) {
				constants = appendUnique(constants, text)
			}
		case "string":
			if text := nodeText(n, src); businessString(text) {
				constants = appendUnique(constants, pythonStringContent(text))
			}
			return false
		case "function_definition", "lambda":
			// Nested definitions do not contribute to the enclosing summary.
			return false
		}
		return true
	})
	return calls, constants
}

// pythonCallBase resolves the leftmost identifier of a call target, so
// requests.get(...) attributes to "requests".
func pythonCallBase(fn *sitter.Node, src []byte) string {
	for fn != nil {
		switch fn.Type() {
		case "identifier":
			return nodeText(fn, src)
		case "attribute":
			fn = fn.ChildByFieldName("object")
		case "call":
			fn = fn.ChildByFieldName("function")
		default:
			return ""
		}
	}
	return ""
}

// pythonStringContent strips quotes and prefixes from a string literal.
func pythonStringContent(text string) string {
	text = strings.TrimLeft(text, "rbufRBUF")
	for _, q := range []string{`"""`, "'''", `"`, "'"} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2*len(q) {
			return strings.TrimSpace(text[len(q) : len(text)-len(q)])
		}
	}
	return strings.TrimSpace(text)
}
