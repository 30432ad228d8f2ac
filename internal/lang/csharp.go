package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"

	"github.com/phobologic/sprocscan/internal/syntax"
)

func init() {
	Languages["csharp"] = &Language{
		Name:       "csharp",
		Extensions: []string{".cs"},
		lang:       csharp.GetLanguage(),
		kinds: map[string]syntax.Kind{
			"compilation_unit":                  syntax.KindRoot,
			"namespace_declaration":             syntax.KindNamespace,
			"file_scoped_namespace_declaration": syntax.KindNamespace,
			"using_directive":                   syntax.KindImport,
			"class_declaration":                 syntax.KindType,
			"struct_declaration":                syntax.KindType,
			"interface_declaration":             syntax.KindType,
			"record_declaration":                syntax.KindType,
			"record_struct_declaration":         syntax.KindType,
			"method_declaration":                syntax.KindMethod,
			"local_function_statement":          syntax.KindMethod,
			"parameter":                         syntax.KindParameter,
			"block":                             syntax.KindBlock,
			"field_declaration":                 syntax.KindField,
			"property_declaration":              syntax.KindProperty,
			"variable_declaration":              syntax.KindDeclaration,
			"variable_declarator":               syntax.KindDeclarator,
			"assignment_expression":             syntax.KindAssignment,
			"invocation_expression":             syntax.KindInvocation,
			"member_access_expression":          syntax.KindMemberAccess,
			"object_creation_expression":        syntax.KindObjectCreation,
			"initializer_expression":            syntax.KindInitializer,
			"argument":                          syntax.KindArgument,
			"string_literal":                    syntax.KindLiteral,
			"verbatim_string_literal":           syntax.KindLiteral,
			"raw_string_literal":                syntax.KindLiteral,
			"character_literal":                 syntax.KindLiteral,
			"integer_literal":                   syntax.KindLiteral,
			"real_literal":                      syntax.KindLiteral,
			"boolean_literal":                   syntax.KindLiteral,
			"null_literal":                      syntax.KindLiteral,
			"identifier":                        syntax.KindIdentifier,
			"this_expression":                   syntax.KindThis,
			"this":                              syntax.KindThis,
		},
		attach: csharpAttach,
	}
}

func csharpAttach(b *builder, id syntax.NodeID, n *sitter.Node) {
	nd := b.node(id)
	switch nd.Kind {
	case syntax.KindNamespace:
		name := field(n, "name", func(n *sitter.Node) *sitter.Node {
			return firstNamedOfType(n, "identifier", "qualified_name")
		})
		nd.Name = StripWhitespace(b.text(name))
		nd.FileScoped = n.Type() == "file_scoped_namespace_declaration"

	case syntax.KindImport:
		nd.Name = StripWhitespace(b.text(lastNamedOfType(n, "identifier", "qualified_name", "alias_qualified_name")))

	case syntax.KindType:
		nd.Name = b.text(field(n, "name", identifierChild))
		if bl := firstNamedOfType(n, "base_list"); bl != nil {
			nd.Bases = csharpBases(b, bl)
		}

	case syntax.KindMethod:
		nd.Name = b.text(field(n, "name", csharpMethodName))
		params := field(n, "parameters", func(n *sitter.Node) *sitter.Node {
			return firstNamedOfType(n, "parameter_list")
		})
		for _, p := range namedChildren(params) {
			if p.Type() == "parameter" {
				nd.Params = append(nd.Params, b.text(field(p, "name", lastIdentifierChild)))
			}
		}

	case syntax.KindParameter:
		nd.Name = b.text(field(n, "name", lastIdentifierChild))
		nd.Type = syntax.TypeName(b.text(n.ChildByFieldName("type")))

	case syntax.KindProperty:
		nd.Name = b.text(field(n, "name", lastIdentifierChild))
		nd.Type = syntax.TypeName(b.text(n.ChildByFieldName("type")))
		nd.Right = b.id(field(n, "value", afterEquals))

	case syntax.KindDeclaration:
		nd.Type = syntax.TypeName(b.text(field(n, "type", firstNamed)))

	case syntax.KindDeclarator:
		nd.Name = b.text(field(n, "name", identifierChild))
		if evc := firstNamedOfType(n, "equals_value_clause"); evc != nil {
			nd.Right = b.id(lastNamed(evc))
		} else {
			nd.Right = b.id(afterEquals(n))
		}

	case syntax.KindAssignment:
		if assignOperator(b, n) != "=" {
			// Compound assignments do not replace the value.
			nd.Kind = syntax.KindOther
			return
		}
		nd.Left = b.id(field(n, "left", firstNamed))
		nd.Right = b.id(field(n, "right", lastNamed))

	case syntax.KindInvocation:
		fn := field(n, "function", firstNamed)
		if fn == nil {
			return
		}
		nd.Callee = StripWhitespace(b.text(fn))
		switch fn.Type() {
		case "member_access_expression":
			nd.Object = b.id(field(fn, "expression", firstNamed))
			nd.Name = syntax.TypeName(b.text(field(fn, "name", lastNamed)))
		case "identifier", "generic_name":
			nd.Name = syntax.TypeName(b.text(fn))
		}
		nd.Args = csharpArgs(b, field(n, "arguments", func(n *sitter.Node) *sitter.Node {
			return firstNamedOfType(n, "argument_list")
		}))

	case syntax.KindMemberAccess:
		nd.Object = b.id(field(n, "expression", firstNamed))
		nd.Name = syntax.TypeName(b.text(field(n, "name", lastNamed)))

	case syntax.KindObjectCreation:
		nd.Type = syntax.TypeName(b.text(field(n, "type", firstNamed)))
		nd.Args = csharpArgs(b, field(n, "arguments", func(n *sitter.Node) *sitter.Node {
			return firstNamedOfType(n, "argument_list")
		}))
		nd.Initializer = b.id(field(n, "initializer", func(n *sitter.Node) *sitter.Node {
			return firstNamedOfType(n, "initializer_expression")
		}))

	case syntax.KindLiteral:
		nd.Value = literalValue(n.Type(), b.text(n))

	case syntax.KindIdentifier:
		nd.Name = b.text(n)
	}
}

// csharpArgs returns the expression of each argument in an argument_list,
// keeping positions: an argument without an expression yields NoNode.
func csharpArgs(b *builder, list *sitter.Node) []syntax.NodeID {
	var args []syntax.NodeID
	for _, a := range namedChildren(list) {
		if a.Type() != "argument" {
			continue
		}
		args = append(args, b.id(lastNamed(a)))
	}
	return args
}

// csharpBases returns the declared base class and interface names.
func csharpBases(b *builder, list *sitter.Node) []string {
	var bases []string
	for _, c := range namedChildren(list) {
		var text string
		switch c.Type() {
		case "identifier", "generic_name", "qualified_name", "predefined_type":
			text = b.text(c)
		case "argument_list":
			continue
		default:
			// primary_constructor_base_type and friends wrap the type.
			if f := firstNamed(c); f != nil {
				text = b.text(f)
			} else {
				text = b.text(c)
			}
		}
		if name := syntax.TypeName(text); name != "" {
			bases = append(bases, name)
		}
	}
	return bases
}

// csharpMethodName picks the method name when the grammar does not name the
// field: the last identifier before the parameter list.
func csharpMethodName(n *sitter.Node) *sitter.Node {
	var name *sitter.Node
	for _, c := range namedChildren(n) {
		if c.Type() == "parameter_list" {
			break
		}
		if c.Type() == "identifier" {
			name = c
		}
	}
	return name
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if n == nil || n.NamedChildCount() == 0 {
		return nil
	}
	return n.NamedChild(0)
}

func identifierChild(n *sitter.Node) *sitter.Node {
	return firstNamedOfType(n, "identifier")
}

func lastIdentifierChild(n *sitter.Node) *sitter.Node {
	return lastNamedOfType(n, "identifier")
}

