// Package ixerr defines the error taxonomy shared across the indexer so
// callers can branch on error kind with errors.Is/errors.As instead of
// string-matching messages.
package ixerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error classes the pipeline distinguishes when deciding
// whether to retry, fail a level, fail a block, skip, or exit.
type Kind int

const (
	// Transient covers I/O errors (node RPC, database) worth retrying.
	Transient Kind = iota
	// Malformed covers an RPC response that doesn't parse as expected.
	Malformed
	// TypeMismatch covers a storage value that doesn't match the declared type.
	TypeMismatch
	// SchemaInvariant covers a violated schema-compiler invariant (e.g. a
	// non-primitive big-map key).
	SchemaInvariant
	// Configuration covers bad flags/env/config file contents.
	Configuration
	// Denylisted marks a contract the operator has chosen to skip.
	Denylisted
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Malformed:
		return "malformed"
	case TypeMismatch:
		return "type_mismatch"
	case SchemaInvariant:
		return "schema_invariant"
	case Configuration:
		return "configuration"
	case Denylisted:
		return "denylisted"
	default:
		return "unknown"
	}
}

// Context is the reproduction chain spec.md §7 requires every error to
// carry: the operation being attempted and, where known, the contract,
// level, and tx context involved.
type Context struct {
	Op       string
	Contract string
	Level    int32
	TxCtx    string
}

// Error wraps an underlying cause with a Kind and a Context chain. Multiple
// layers of the pipeline may wrap the same Error again via Wrap, each adding
// its own Op, producing a chain readable top-to-bottom with errors.Unwrap.
type Error struct {
	Kind Kind
	Ctx  Context
	Err  error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Ctx.Op, e.Kind)
	if e.Ctx.Contract != "" {
		s += fmt.Sprintf(" contract=%s", e.Ctx.Contract)
	}
	if e.Ctx.Level != 0 {
		s += fmt.Sprintf(" level=%d", e.Ctx.Level)
	}
	if e.Ctx.TxCtx != "" {
		s += fmt.Sprintf(" tx_ctx=%s", e.Ctx.TxCtx)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ixerr.Transient) style checks by comparing Kind
// against a sentinel wrapped with New(kind, "", nil).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs a fresh Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Ctx: Context{Op: op}, Err: err}
}

// Wrap attaches op and kind to err, preserving any Context already present
// on a wrapped *Error one level down by not overwriting fields that were
// already in use — each layer only sets the fields it knows about.
func Wrap(kind Kind, op string, err error) *Error {
	e := &Error{Kind: kind, Ctx: Context{Op: op}, Err: err}
	var prev *Error
	if errors.As(err, &prev) {
		if e.Ctx.Contract == "" {
			e.Ctx.Contract = prev.Ctx.Contract
		}
		if e.Ctx.Level == 0 {
			e.Ctx.Level = prev.Ctx.Level
		}
		if e.Ctx.TxCtx == "" {
			e.Ctx.TxCtx = prev.Ctx.TxCtx
		}
	}
	return e
}

// WithContract returns a copy of e with Contract set, for call sites that
// learn the contract only after construction.
func (e *Error) WithContract(contract string) *Error {
	c := *e
	c.Ctx.Contract = contract
	return &c
}

// WithLevel returns a copy of e with Level set.
func (e *Error) WithLevel(level int32) *Error {
	c := *e
	c.Ctx.Level = level
	return &c
}

// WithTxCtx returns a copy of e with TxCtx set.
func (e *Error) WithTxCtx(txCtx string) *Error {
	c := *e
	c.Ctx.TxCtx = txCtx
	return &c
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
