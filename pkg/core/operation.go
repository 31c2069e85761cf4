// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"fmt"
)

// Args are the structured arguments of a single operation call.
type Args = map[string]any

// Descriptor describes an operation to the model. It is produced once per
// operation and never mutated.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Result is the uniform outcome of an operation call. Failures that the
// model should read and react to are reported with IsError set rather than
// as Go errors.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// Success builds a non-error result.
func Success(content string) Result {
	return Result{Content: content}
}

// Failure builds an error-flagged result.
func Failure(content string) Result {
	return Result{Content: content, IsError: true}
}

// Failuref builds an error-flagged result from a format string.
func Failuref(format string, args ...any) Result {
	return Failure(fmt.Sprintf(format, args...))
}

// Operation is an invocable capability registered in a registry.
type Operation interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, args Args) Result
}

// OperationFunc adapts a plain function into an Operation.
type OperationFunc struct {
	Desc Descriptor
	Fn   func(ctx context.Context, args Args) Result
}

// NewOperation builds an Operation from a descriptor and a function.
func NewOperation(desc Descriptor, fn func(ctx context.Context, args Args) Result) *OperationFunc {
	return &OperationFunc{Desc: desc, Fn: fn}
}

// Descriptor implements Operation.
func (o *OperationFunc) Descriptor() Descriptor { return o.Desc }

// Execute implements Operation.
func (o *OperationFunc) Execute(ctx context.Context, args Args) Result {
	if o.Fn == nil {
		return Failuref("operation %q has no implementation", o.Desc.Name)
	}
	return o.Fn(ctx, args)
}

// ObjectSchema builds a JSON schema object with the given properties and
// required fields.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringArg returns a string argument and whether it was present and non-empty.
func StringArg(args Args, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// BoolArg returns a boolean argument or def when missing or mistyped.
func BoolArg(args Args, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
