package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/phobologic/sprocscan/internal/syntax"
)

func init() {
	Languages["java"] = &Language{
		Name:       "java",
		Extensions: []string{".java"},
		lang:       java.GetLanguage(),
		kinds: map[string]syntax.Kind{
			"program":                        syntax.KindRoot,
			"package_declaration":            syntax.KindNamespace,
			"import_declaration":             syntax.KindImport,
			"class_declaration":              syntax.KindType,
			"interface_declaration":          syntax.KindType,
			"enum_declaration":               syntax.KindType,
			"record_declaration":             syntax.KindType,
			"method_declaration":             syntax.KindMethod,
			"formal_parameter":               syntax.KindParameter,
			"block":                          syntax.KindBlock,
			"constructor_body":               syntax.KindBlock,
			"field_declaration":              syntax.KindField,
			"local_variable_declaration":     syntax.KindDeclaration,
			"variable_declarator":            syntax.KindDeclarator,
			"assignment_expression":          syntax.KindAssignment,
			"method_invocation":              syntax.KindInvocation,
			"field_access":                   syntax.KindMemberAccess,
			"object_creation_expression":     syntax.KindObjectCreation,
			"string_literal":                 syntax.KindLiteral,
			"text_block":                     syntax.KindLiteral,
			"character_literal":              syntax.KindLiteral,
			"decimal_integer_literal":        syntax.KindLiteral,
			"hex_integer_literal":            syntax.KindLiteral,
			"octal_integer_literal":          syntax.KindLiteral,
			"binary_integer_literal":         syntax.KindLiteral,
			"decimal_floating_point_literal": syntax.KindLiteral,
			"true":                           syntax.KindLiteral,
			"false":                          syntax.KindLiteral,
			"null_literal":                   syntax.KindLiteral,
			"identifier":                     syntax.KindIdentifier,
			"this":                           syntax.KindThis,
		},
		attach: javaAttach,
	}
}

func javaAttach(b *builder, id syntax.NodeID, n *sitter.Node) {
	nd := b.node(id)
	switch nd.Kind {
	case syntax.KindNamespace:
		nd.Name = StripWhitespace(b.text(firstNamedOfType(n, "scoped_identifier", "identifier")))
		nd.FileScoped = true

	case syntax.KindImport:
		// Imports guard by package: a class import contributes its package,
		// a wildcard import the package it names.
		name := StripWhitespace(b.text(firstNamedOfType(n, "scoped_identifier", "identifier")))
		if firstNamedOfType(n, "asterisk") == nil {
			if i := strings.LastIndexByte(name, '.'); i >= 0 {
				name = name[:i]
			}
		}
		nd.Name = name

	case syntax.KindType:
		nd.Name = b.text(field(n, "name", identifierChild))
		nd.Bases = javaBases(b, n)

	case syntax.KindMethod:
		nd.Name = b.text(field(n, "name", identifierChild))
		params := field(n, "parameters", func(n *sitter.Node) *sitter.Node {
			return firstNamedOfType(n, "formal_parameters")
		})
		for _, p := range namedChildren(params) {
			switch p.Type() {
			case "formal_parameter":
				nd.Params = append(nd.Params, b.text(field(p, "name", lastIdentifierChild)))
			case "spread_parameter":
				if d := firstNamedOfType(p, "variable_declarator"); d != nil {
					nd.Params = append(nd.Params, b.text(field(d, "name", identifierChild)))
				}
			}
		}

	case syntax.KindParameter:
		nd.Name = b.text(field(n, "name", lastIdentifierChild))
		nd.Type = syntax.TypeName(b.text(n.ChildByFieldName("type")))

	case syntax.KindField, syntax.KindDeclaration:
		nd.Type = syntax.TypeName(b.text(n.ChildByFieldName("type")))

	case syntax.KindDeclarator:
		nd.Name = b.text(field(n, "name", identifierChild))
		nd.Right = b.id(field(n, "value", afterEquals))

	case syntax.KindAssignment:
		if assignOperator(b, n) != "=" {
			// Compound assignments do not replace the value.
			nd.Kind = syntax.KindOther
			return
		}
		nd.Left = b.id(field(n, "left", firstNamed))
		nd.Right = b.id(field(n, "right", lastNamed))

	case syntax.KindInvocation:
		obj := n.ChildByFieldName("object")
		nd.Name = b.text(n.ChildByFieldName("name"))
		nd.Object = b.id(obj)
		nd.Callee = nd.Name
		if obj != nil {
			nd.Callee = StripWhitespace(b.text(obj)) + "." + nd.Name
		}
		nd.Args = javaArgs(b, n.ChildByFieldName("arguments"))

	case syntax.KindMemberAccess:
		nd.Object = b.id(n.ChildByFieldName("object"))
		nd.Name = b.text(n.ChildByFieldName("field"))

	case syntax.KindObjectCreation:
		nd.Type = syntax.TypeName(b.text(n.ChildByFieldName("type")))
		nd.Args = javaArgs(b, n.ChildByFieldName("arguments"))

	case syntax.KindLiteral:
		nd.Value = literalValue(n.Type(), b.text(n))

	case syntax.KindIdentifier:
		nd.Name = b.text(n)
	}
}

func javaArgs(b *builder, list *sitter.Node) []syntax.NodeID {
	var args []syntax.NodeID
	for _, a := range namedChildren(list) {
		args = append(args, b.id(a))
	}
	return args
}

// javaBases collects the superclass and implemented or extended interfaces.
func javaBases(b *builder, n *sitter.Node) []string {
	var bases []string
	add := func(t *sitter.Node) {
		if name := syntax.TypeName(b.text(t)); name != "" {
			bases = append(bases, name)
		}
	}
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "superclass":
			for _, t := range namedChildren(c) {
				add(t)
			}
		case "super_interfaces", "extends_interfaces":
			for _, t := range namedChildren(firstNamedOfType(c, "type_list")) {
				add(t)
			}
		}
	}
	return bases
}
