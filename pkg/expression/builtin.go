package expression

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// evalBuiltin evaluates the fixed set of operators available when no custom operator of the same
// name is registered.
func (e *Expression) evalBuiltin(ctx EvalCtx) (any, error) {
	var fn func(e *Expression, ctx EvalCtx) (any, error)
	switch e.Op {
	case "$concat":
		fn = evalConcat
	case "$strLenCP":
		fn = evalStrLenCP
	case "$toUpper":
		fn = evalToUpper
	case "$toLower":
		fn = evalToLower
	case "$substr":
		fn = evalSubstr
	default:
		return nil, NewUnknownOperatorError(e)
	}

	if e.Arg == nil {
		return nil, NewOperatorArgumentError(e, errors.New("empty argument"))
	}

	return fn(e, ctx)
}

// evalUnaryArg evaluates the argument of a single-argument operator, accepting both the bare
// form {$op: exp} and the list form {$op: [exp]}.
func evalUnaryArg(e *Expression, ctx EvalCtx) (any, error) {
	arg := e.Arg
	if arg.Kind == ListKind {
		if len(arg.Items) != 1 {
			return nil, NewOperatorArgumentError(e,
				fmt.Errorf("expected 1 argument, got %d", len(arg.Items)))
		}
		arg = &arg.Items[0]
	}
	return arg.Evaluate(ctx)
}

func evalConcat(e *Expression, ctx EvalCtx) (any, error) {
	v, err := e.Arg.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	args, err := AsList(v)
	if err != nil {
		return nil, NewOperatorArgumentError(e, err)
	}

	var b strings.Builder
	for i := range args {
		b.WriteString(Stringify(args[i]))
	}

	return b.String(), nil
}

func evalStrLenCP(e *Expression, ctx EvalCtx) (any, error) {
	v, err := evalUnaryArg(e, ctx)
	if err != nil {
		return nil, err
	}

	str, err := AsString(v)
	if err != nil {
		return nil, NewOperatorArgumentError(e, err)
	}

	return int64(utf8.RuneCountInString(str)), nil
}

func evalToUpper(e *Expression, ctx EvalCtx) (any, error) {
	v, err := evalUnaryArg(e, ctx)
	if err != nil {
		return nil, err
	}
	return strings.ToUpper(Stringify(v)), nil
}

func evalToLower(e *Expression, ctx EvalCtx) (any, error) {
	v, err := evalUnaryArg(e, ctx)
	if err != nil {
		return nil, err
	}
	return strings.ToLower(Stringify(v)), nil
}

// evalSubstr takes [string, start, length] and returns the code points in
// [start, start+length) clipped to the string. A negative length yields the empty string.
func evalSubstr(e *Expression, ctx EvalCtx) (any, error) {
	v, err := e.Arg.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	args, err := AsList(v)
	if err != nil {
		return nil, NewOperatorArgumentError(e, err)
	}

	if len(args) != 3 {
		return nil, NewOperatorArgumentError(e,
			fmt.Errorf("expected 3 arguments, got %d", len(args)))
	}

	start, err := AsInt(args[1])
	if err != nil {
		return nil, NewOperatorArgumentError(e, fmt.Errorf("invalid start: %w", err))
	}

	length, err := AsInt(args[2])
	if err != nil {
		return nil, NewOperatorArgumentError(e, fmt.Errorf("invalid length: %w", err))
	}

	rs := []rune(Stringify(args[0]))
	n := int64(len(rs))

	start = min(max(start, 0), n)
	end := min(max(start+length, start), n)

	return string(rs[start:end]), nil
}
