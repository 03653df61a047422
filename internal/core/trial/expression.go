package trial

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/penwyp/go-trial-monitor/internal/util"
)

// Expression is a small, sandboxed expression over trial enhancements, used
// for enhancer gates and computed enhancement values. Free variables resolve
// to enhancement values by name. The grammar is closed: literals,
// identifiers, parentheses, unary !/-, and binary arithmetic, comparison,
// and logic operators. Anything else is an evaluation error.
//
// Expressions are parsed once, at configuration time; evaluation errors at
// trial time yield the configured default value rather than failing the
// trial.
type Expression struct {
	source       string
	parsed       ast.Expr
	defaultValue any
}

// NewExpression parses the given expression source. Parse errors are
// configuration errors and are returned immediately.
func NewExpression(source string, defaultValue any) (*Expression, error) {
	parsed, err := parser.ParseExpr(source)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", source, err)
	}
	return &Expression{source: source, parsed: parsed, defaultValue: defaultValue}, nil
}

// Source returns the original expression text.
func (e *Expression) Source() string {
	return e.source
}

// Evaluate computes the expression value with free variables bound to the
// trial's enhancements. On any evaluation error the configured default value
// is returned instead.
func (e *Expression) Evaluate(trial *Trial) any {
	value, err := evalNode(e.parsed, trial.Enhancements)
	if err != nil {
		util.LogErrorf("Error evaluating expression %q: %v", e.source, err)
		util.LogWarnf("Returning expression default value: %v", e.defaultValue)
		return e.defaultValue
	}
	return value
}

// truthy reports whether an expression result counts as true for gating:
// false, zero, empty string, empty list, and nil are all falsy.
func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case []any:
		return len(typed) > 0
	case []float64:
		return len(typed) > 0
	default:
		if number, ok := asNumber(value); ok {
			return number != 0
		}
		return true
	}
}

func asNumber(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case bool:
		if typed {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func evalNode(node ast.Expr, variables map[string]any) (any, error) {
	switch typed := node.(type) {
	case *ast.ParenExpr:
		return evalNode(typed.X, variables)
	case *ast.BasicLit:
		return evalLiteral(typed)
	case *ast.Ident:
		return evalIdent(typed, variables)
	case *ast.UnaryExpr:
		return evalUnary(typed, variables)
	case *ast.BinaryExpr:
		return evalBinary(typed, variables)
	default:
		return nil, fmt.Errorf("unsupported syntax %T", node)
	}
}

func evalLiteral(lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.INT, token.FLOAT:
		return strconv.ParseFloat(lit.Value, 64)
	case token.STRING:
		return strconv.Unquote(lit.Value)
	default:
		return nil, fmt.Errorf("unsupported literal %s", lit.Value)
	}
}

func evalIdent(ident *ast.Ident, variables map[string]any) (any, error) {
	switch ident.Name {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	value, ok := variables[ident.Name]
	if !ok {
		return nil, fmt.Errorf("undefined variable %q", ident.Name)
	}
	return value, nil
}

func evalUnary(expr *ast.UnaryExpr, variables map[string]any) (any, error) {
	operand, err := evalNode(expr.X, variables)
	if err != nil {
		return nil, err
	}
	switch expr.Op {
	case token.NOT:
		return !truthy(operand), nil
	case token.SUB:
		number, ok := asNumber(operand)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", operand)
		}
		return -number, nil
	case token.ADD:
		number, ok := asNumber(operand)
		if !ok {
			return nil, fmt.Errorf("cannot apply unary + to %T", operand)
		}
		return number, nil
	default:
		return nil, fmt.Errorf("unsupported unary operator %s", expr.Op)
	}
}

func evalBinary(expr *ast.BinaryExpr, variables map[string]any) (any, error) {
	// Logic operators short-circuit, so the right side only evaluates when
	// needed.
	if expr.Op == token.LAND || expr.Op == token.LOR {
		left, err := evalNode(expr.X, variables)
		if err != nil {
			return nil, err
		}
		if expr.Op == token.LAND && !truthy(left) {
			return false, nil
		}
		if expr.Op == token.LOR && truthy(left) {
			return true, nil
		}
		right, err := evalNode(expr.Y, variables)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	left, err := evalNode(expr.X, variables)
	if err != nil {
		return nil, err
	}
	right, err := evalNode(expr.Y, variables)
	if err != nil {
		return nil, err
	}

	leftString, leftIsString := left.(string)
	rightString, rightIsString := right.(string)
	if leftIsString && rightIsString {
		return evalStringOp(expr.Op, leftString, rightString)
	}

	leftNumber, leftOK := asNumber(left)
	rightNumber, rightOK := asNumber(right)
	if !leftOK || !rightOK {
		return nil, fmt.Errorf("operator %s not defined on %T and %T", expr.Op, left, right)
	}
	return evalNumberOp(expr.Op, leftNumber, rightNumber)
}

func evalStringOp(op token.Token, left, right string) (any, error) {
	switch op {
	case token.ADD:
		return left + right, nil
	case token.EQL:
		return left == right, nil
	case token.NEQ:
		return left != right, nil
	case token.LSS:
		return left < right, nil
	case token.LEQ:
		return left <= right, nil
	case token.GTR:
		return left > right, nil
	case token.GEQ:
		return left >= right, nil
	default:
		return nil, fmt.Errorf("operator %s not defined on strings", op)
	}
}

func evalNumberOp(op token.Token, left, right float64) (any, error) {
	switch op {
	case token.ADD:
		return left + right, nil
	case token.SUB:
		return left - right, nil
	case token.MUL:
		return left * right, nil
	case token.QUO:
		if right == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return left / right, nil
	case token.REM:
		if right == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return float64(int64(left) % int64(right)), nil
	case token.EQL:
		return left == right, nil
	case token.NEQ:
		return left != right, nil
	case token.LSS:
		return left < right, nil
	case token.LEQ:
		return left <= right, nil
	case token.GTR:
		return left > right, nil
	case token.GEQ:
		return left >= right, nil
	default:
		return nil, fmt.Errorf("unsupported operator %s", op)
	}
}
