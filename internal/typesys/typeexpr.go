// This file contains the logic for parsing HCL type expressions (e.g., `string`,
// `list(string)`, `enum("dhcp", "static")`) into their descriptor equivalents.

package typesys

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// ParseTypeExpr converts an HCL type expression into a Type descriptor.
func ParseTypeExpr(expr hcl.Expression) (*Type, error) {
	if expr == nil {
		return nil, fmt.Errorf("missing type expression")
	}

	// A type switch over the concrete expression types is the supported way
	// to inspect hcl.Expression values.
	switch v := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		switch v.Name {
		case "list", "map":
			if len(v.Args) != 1 {
				return nil, fmt.Errorf("type constructor %q requires exactly one argument, got %d", v.Name, len(v.Args))
			}
			elem, err := ParseTypeExpr(v.Args[0])
			if err != nil {
				return nil, err
			}
			if v.Name == "list" {
				return ListOf(elem), nil
			}
			return MapOf(elem), nil

		case "enum":
			if len(v.Args) == 0 {
				return nil, fmt.Errorf("enum type requires at least one variant")
			}
			variants := make([]string, 0, len(v.Args))
			for _, arg := range v.Args {
				val, diags := arg.Value(nil)
				if diags.HasErrors() {
					return nil, fmt.Errorf("enum variant must be a literal string: %s", diags.Error())
				}
				if !val.Type().Equals(cty.String) {
					return nil, fmt.Errorf("enum variant must be a string, got %s", val.Type().FriendlyName())
				}
				variants = append(variants, val.AsString())
			}
			return Enum(variants...), nil

		default:
			return nil, fmt.Errorf("unknown type constructor function %q", v.Name)
		}

	case *hclsyntax.ScopeTraversalExpr:
		// Primitive type keywords like `string` or `bool`.
		if len(v.Traversal) != 1 {
			return nil, fmt.Errorf("invalid type keyword: traversal path is not a single identifier")
		}
		switch name := v.Traversal.RootName(); name {
		case "bool":
			return Bool(), nil
		case "int", "number":
			return Int(), nil
		case "string":
			return String(), nil
		default:
			return nil, fmt.Errorf("unknown type keyword %q", name)
		}

	default:
		return nil, fmt.Errorf("unsupported type expression %T", expr)
	}
}

// ParseTypeString parses a type expression given as source text, e.g. from a
// module manifest attribute.
func ParseTypeString(src string) (*Type, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "<type>", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing type expression %q: %s", src, diags.Error())
	}
	return ParseTypeExpr(expr)
}
