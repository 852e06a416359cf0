// Package fragment turns arbitrary snippets of Go source into compilable,
// executable units while preserving REPL semantics across submissions: later
// fragments see everything earlier successful fragments declared, and failed
// fragments are invisible to subsequent state.
package fragment

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"strings"

	"github.com/googledatalab/igo/internal/compile"
	"github.com/googledatalab/igo/internal/runner"
)

// BlockHint is the user-facing message for the input-contract violation: a
// bare statement is ambiguous between a declaration addition and executable
// code, so executable code must arrive braced. The compiler never sees such
// input.
const BlockHint = "For a code to run, wrap it in a block, like { your_code; }"

// wrapPrefix makes a fragment parseable as a file for classification only.
const wrapPrefix = "package repl\n\n"

// blockWrapPrefix turns a braced block into a callable expression. Line-1
// diagnostic columns carry its length and are shifted back before rendering.
const blockWrapPrefix = "func() "

// fragmentKind is the result of classifying one submission.
type fragmentKind int

const (
	kindDeclaration fragmentKind = iota // complete top-level declarations
	kindBlock                           // braced executable statements
	kindBare                            // contract violation
)

// Runner maintains one session's execution state and drives the
// classify/synthesize/compile/run pipeline for each submission.
type Runner struct {
	comp  *compile.Compiler
	state *ExecutionState
	fset  *token.FileSet
}

// NewRunner binds a runner to a compiler and a session state. The state is
// owned by the caller; exactly one Run may mutate it at a time.
func NewRunner(comp *compile.Compiler, state *ExecutionState) *Runner {
	return &Runner{comp: comp, state: state, fset: token.NewFileSet()}
}

// State returns the session state.
func (r *Runner) State() *ExecutionState { return r.state }

// Run submits one fragment. Interpreter output is routed to stdout and
// stderr for the duration of the run; compile diagnostics, runtime failures
// and contract violations are rendered to stderr. The return value reports
// whether the fragment fully succeeded. On any failure the execution state is
// left exactly as it was.
func (r *Runner) Run(ctx context.Context, code string, stdout, stderr io.Writer) bool {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return true
	}
	r.comp.SetOutput(stdout, stderr)
	defer r.comp.ResetOutput()
	kind, file := r.classify(code)
	switch kind {
	case kindDeclaration:
		return r.runDeclaration(code, file, stderr)
	case kindBlock:
		return r.runBlock(ctx, trimmed, stderr)
	default:
		fmt.Fprintln(stderr, BlockHint)
		return false
	}
}

// classify decides how a submission must be handled. A snippet that parses
// as a standalone file of top-level declarations is a declaration fragment;
// a braced snippet is an executable block; everything else violates the
// input contract.
func (r *Runner) classify(code string) (fragmentKind, *ast.File) {
	file, err := parser.ParseFile(r.fset, "fragment.go", wrapPrefix+code, parser.SkipObjectResolution)
	if err == nil && len(file.Decls) > 0 {
		return kindDeclaration, file
	}
	trimmed := strings.TrimSpace(code)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return kindBlock, nil
	}
	return kindBare, nil
}

// runDeclaration compiles the fragment against accumulated state and, on
// success, merges its declarations into the session. There is no run step:
// new types, functions, variables and imports are registered for later
// fragments to reference, and variable initializers take effect as part of
// registration.
func (r *Runner) runDeclaration(code string, file *ast.File, stderr io.Writer) bool {
	src := r.freshSource(code, file)
	if src == "" {
		// Every declaration is an import the session already executed, so
		// resubmitting the cell is a no-op success.
		return true
	}
	prog, diags := r.comp.Compile("fragment.go", src)
	if diags.HasErrors() {
		io.WriteString(stderr, compile.Render(src, diags))
		return false
	}
	if _, err := r.comp.Execute(prog); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return false
	}
	r.commitDeclarations(code, file)
	return true
}

// freshSource rebuilds the fragment without imports the session has already
// executed. The interpreter rejects a re-imported package as redeclared, so
// duplicates must never reach it; filtering keeps resubmitting a cell with
// imports idempotent.
func (r *Runner) freshSource(code string, file *ast.File) string {
	var parts []string
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.IMPORT {
			continue
		}
		for _, spec := range gen.Specs {
			if imp, isImport := spec.(*ast.ImportSpec); isImport {
				if line := importLine(imp); !r.state.HasImport(line) {
					parts = append(parts, line)
				}
			}
		}
	}
	if decls := r.declarationSource(code, file); decls != "" {
		parts = append(parts, decls)
	}
	return strings.Join(parts, "\n")
}

// commitDeclarations splits a successfully registered fragment into its
// import lines and its remaining declaration source, then captures the
// current value of every newly declared variable.
func (r *Runner) commitDeclarations(code string, file *ast.File) {
	var fieldNames []string
	committed := false
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if ok && gen.Tok == token.IMPORT {
			for _, spec := range gen.Specs {
				if imp, isImport := spec.(*ast.ImportSpec); isImport {
					r.state.AddImport(importLine(imp))
				}
			}
			continue
		}
		if !committed {
			// Non-import declarations accumulate as one snippet, in the
			// user's own text.
			r.state.Codes = append(r.state.Codes, r.declarationSource(code, file))
			committed = true
		}
		if ok {
			for _, spec := range gen.Specs {
				if vs, isValue := spec.(*ast.ValueSpec); isValue {
					for _, id := range vs.Names {
						if id.Name != "_" {
							fieldNames = append(fieldNames, id.Name)
						}
					}
				}
			}
		}
	}
	for _, name := range fieldNames {
		r.captureField(name)
	}
}

// declarationSource returns the fragment text minus any import declarations,
// so Codes carries exactly what the user declared.
func (r *Runner) declarationSource(code string, file *ast.File) string {
	tf := r.fset.File(file.Pos())
	var parts []string
	for _, decl := range file.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok && gen.Tok == token.IMPORT {
			continue
		}
		start := tf.Offset(decl.Pos()) - len(wrapPrefix)
		end := tf.Offset(decl.End()) - len(wrapPrefix)
		if start < 0 || end > len(code) || start >= end {
			continue
		}
		parts = append(parts, strings.TrimSpace(code[start:end]))
	}
	return strings.Join(parts, "\n")
}

func importLine(imp *ast.ImportSpec) string {
	if imp.Name != nil {
		return fmt.Sprintf("import %s %s", imp.Name.Name, imp.Path.Value)
	}
	return "import " + imp.Path.Value
}

// captureField records the current runtime value of a declared variable.
// Constants and shadowing oddities that the interpreter cannot evaluate as a
// bare identifier are simply skipped.
func (r *Runner) captureField(name string) {
	v, err := r.comp.Eval(name)
	if err != nil || !v.IsValid() || !v.CanInterface() {
		return
	}
	r.state.FieldValues[name] = v.Interface()
}

// blockTask adapts one synthesized block program to the code runner's
// lifecycle. Accumulated values already live in the interpreter, so Init has
// nothing to bind; Done captures updated field values and advances the scope
// chain. Done is skipped when Run fails, so values touched by a failed block
// are not re-captured.
type blockTask struct {
	frag *Runner
	prog *compile.Program
}

func (t *blockTask) Init() error { return nil }

func (t *blockTask) Run() error {
	_, err := t.frag.comp.Execute(t.prog)
	return err
}

func (t *blockTask) Done() error {
	for name := range t.frag.state.FieldValues {
		t.frag.captureField(name)
	}
	t.frag.comp.PushScope()
	return nil
}

// runBlock synthesizes a callable wrapper around a braced block, compiles it
// against accumulated state, and executes it on a dedicated worker, joining
// with the caller's deadline. A worker that outlives the deadline commits
// nothing; the runner guarantees its Done hook never fires.
func (r *Runner) runBlock(ctx context.Context, block string, stderr io.Writer) bool {
	src := blockWrapPrefix + block + "()"
	result := r.comp.Analyze("fragment.go", src)
	if result.Diagnostics.HasErrors() {
		io.WriteString(stderr, compile.Render(block, unwrapBlockDiags(result.Diagnostics)))
		return false
	}

	run := runner.New(&blockTask{frag: r, prog: result.Program})
	run.Start()
	if err := run.Wait(ctx); err != nil {
		if errors.Is(err, runner.ErrDeadline) {
			fmt.Fprintln(stderr, "execution did not finish before the configured deadline")
		} else {
			fmt.Fprintln(stderr, err.Error())
		}
		return false
	}
	return true
}

// unwrapBlockDiags maps wrapper positions back onto the user's braced text.
// Only line 1 carries the wrapper prefix; later lines are identical in both
// texts.
func unwrapBlockDiags(diags compile.DiagnosticList) compile.DiagnosticList {
	out := make(compile.DiagnosticList, len(diags))
	for i, d := range diags {
		if d.Line == 1 && d.Column > len(blockWrapPrefix) {
			d.Column -= len(blockWrapPrefix)
		}
		out[i] = d
	}
	return out
}
