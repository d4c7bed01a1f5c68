// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/TechnicallyWeb3/esp/lib/identity"
)

// CEL evaluates a boolean CEL expression over the variables caller,
// path and operation (all strings; a null caller is ""). Evaluation
// errors deny.
//
//	caller != "" && (operation in ["GET", "HEAD", "LOCATE"] || path.startsWith("/users/" + caller + "/"))
type CEL struct {
	expression string
	program    cel.Program
}

// NewCEL compiles expression and checks that it yields a bool.
func NewCEL(expression string) (*CEL, error) {
	env, err := cel.NewEnv(
		cel.Variable("caller", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("operation", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compiling authorization expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("authorization expression yields %s, want bool", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building authorization program: %w", err)
	}
	return &CEL{expression: expression, program: program}, nil
}

// CanInvoke evaluates the expression.
func (c *CEL) CanInvoke(ctx context.Context, caller identity.ID, path string, op Operation) bool {
	out, _, err := c.program.ContextEval(ctx, map[string]any{
		"caller":    string(caller),
		"path":      path,
		"operation": string(op),
	})
	if err != nil {
		return false
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed
}

// String returns the source expression.
func (c *CEL) String() string {
	return c.expression
}
