// Package compile wraps the Go front end and the yaegi interpreter behind an
// in-memory, incremental compiler: nothing touches disk, later fragments
// resolve symbols declared by earlier ones, and every compiled declaration is
// kept in an append-only unit registry with a generation-chained scope as the
// loader analogue.
package compile

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// wrapPrefix makes a bare fragment parseable as a file by the Go front end.
// Its line count is the offset subtracted from parse positions.
const wrapPrefix = "package repl\n\n"

const wrapPrefixLines = 2

// Options configures a Compiler.
type Options struct {
	// Stdout and Stderr are the default targets for interpreter output when
	// no run-scoped routing is installed. Nil means the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Compiler is the in-memory incremental compiler. One instance lives for the
// whole kernel process; the one-in-flight-execution invariant means callers
// never use it from two goroutines at once, so it carries no lock.
type Compiler struct {
	fset  *token.FileSet
	inter *interp.Interpreter

	units []*Unit
	index map[string]*Unit
	scope *Scope

	stdout, stderr         *routedWriter
	defaultOut, defaultErr io.Writer
}

// Program is one compiled, executable unit of work.
type Program struct {
	prog   *interp.Program
	source string
}

// Source returns the exact text the program was compiled from.
func (p *Program) Source() string { return p.source }

// CompilationResult is the output of Parse and Analyze.
type CompilationResult struct {
	Diagnostics DiagnosticList
	File        *ast.File
	Program     *Program
}

// New builds a Compiler with the full standard library available to
// fragments.
func New(opts Options) (*Compiler, error) {
	defOut := opts.Stdout
	if defOut == nil {
		defOut = os.Stdout
	}
	defErr := opts.Stderr
	if defErr == nil {
		defErr = os.Stderr
	}
	stdout := &routedWriter{w: defOut}
	stderr := &routedWriter{w: defErr}
	inter := interp.New(interp.Options{Stdout: stdout, Stderr: stderr})
	if err := inter.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	return &Compiler{
		fset:       token.NewFileSet(),
		inter:      inter,
		index:      map[string]*Unit{},
		scope:      &Scope{},
		stdout:     stdout,
		stderr:     stderr,
		defaultOut: defOut,
		defaultErr: defErr,
	}, nil
}

// SetOutput routes interpreter output to the given writers until ResetOutput.
// The interpreter binds its writers once at construction, so per-run capture
// goes through this indirection rather than touching the process streams.
func (c *Compiler) SetOutput(stdout, stderr io.Writer) {
	c.stdout.route(stdout)
	c.stderr.route(stderr)
}

// ResetOutput points interpreter output back at the defaults.
func (c *Compiler) ResetOutput() {
	c.stdout.route(c.defaultOut)
	c.stderr.route(c.defaultErr)
}

// Parse checks syntax only, without resolving symbols. The source may be a
// bare fragment; it is wrapped into a synthetic file for the front end.
func (c *Compiler) Parse(src string) CompilationResult {
	wrapped := src
	offset := 0
	if !strings.HasPrefix(strings.TrimSpace(src), "package ") {
		wrapped = wrapPrefix + src
		offset = wrapPrefixLines
	}
	file, err := parser.ParseFile(c.fset, "fragment.go", wrapped, parser.SkipObjectResolution)
	return CompilationResult{
		Diagnostics: toDiagnostics(err, offset),
		File:        file,
	}
}

// Analyze parses and resolves src against everything compiled so far, without
// committing anything to the unit registry and without executing.
func (c *Compiler) Analyze(path, src string) CompilationResult {
	prog, err := c.inter.Compile(src)
	if err != nil {
		return CompilationResult{Diagnostics: toDiagnostics(err, 0)}
	}
	return CompilationResult{Program: &Program{prog: prog, source: src}}
}

// Compile resolves src against accumulated state and, on success, registers
// every top-level declared name as a unit in the current scope. The returned
// program has not been executed.
func (c *Compiler) Compile(path, src string) (*Program, DiagnosticList) {
	result := c.Analyze(path, src)
	if result.Diagnostics.HasErrors() {
		return nil, result.Diagnostics
	}
	for _, name := range c.declaredNames(src) {
		unit := &Unit{Name: name, Source: src, Generation: c.scope.generation}
		c.units = append(c.units, unit)
		c.index[name] = unit
		c.scope.add(name)
	}
	return result.Program, result.Diagnostics
}

// Execute runs a compiled program in the interpreter. Declarations it
// contains become visible to later fragments; a panic inside user code is
// returned as an error, not propagated.
func (c *Compiler) Execute(p *Program) (reflect.Value, error) {
	return c.inter.Execute(p.prog)
}

// Eval evaluates an expression, typically a bare identifier, against current
// state. Used to read accumulated field values back out after a run.
func (c *Compiler) Eval(expr string) (reflect.Value, error) {
	return c.inter.Eval(expr)
}

// Lookup returns the most recent unit registered under name.
func (c *Compiler) Lookup(name string) (*Unit, bool) {
	u, ok := c.index[name]
	return u, ok
}

// Units returns the append-only registry in registration order.
func (c *Compiler) Units() []*Unit {
	return c.units
}

// Scope returns the current scope.
func (c *Compiler) Scope() *Scope { return c.scope }

// PushScope chains a new scope onto the current one and makes it current.
// Called once per successfully executed fragment.
func (c *Compiler) PushScope() *Scope {
	c.scope = &Scope{generation: c.scope.generation + 1, parent: c.scope}
	return c.scope
}

// declaredNames extracts the top-level names src declares. Imports are not
// units; they accumulate in the execution state instead.
func (c *Compiler) declaredNames(src string) []string {
	result := c.Parse(src)
	if result.File == nil {
		return nil
	}
	var names []string
	for _, decl := range result.File.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil {
				names = append(names, d.Name.Name)
			}
		case *ast.GenDecl:
			if d.Tok == token.IMPORT {
				continue
			}
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					names = append(names, s.Name.Name)
				case *ast.ValueSpec:
					for _, id := range s.Names {
						if id.Name != "_" {
							names = append(names, id.Name)
						}
					}
				}
			}
		}
	}
	return names
}
