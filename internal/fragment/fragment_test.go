package fragment

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googledatalab/igo/internal/compile"
	"github.com/googledatalab/igo/internal/streams"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	comp, err := compile.New(compile.Options{})
	require.NoError(t, err)
	return NewRunner(comp, NewExecutionState())
}

// runCaptured runs one fragment with its output routed into capture pipes,
// returning success plus the stdout and stderr the fragment produced.
func runCaptured(t *testing.T, r *Runner, code string) (bool, string, string) {
	t.Helper()
	capture, err := streams.NewCapture()
	require.NoError(t, err)
	ok := r.Run(context.Background(), code, capture.StdoutSink(), capture.StderrSink())
	capture.Close()

	stdout, err := io.ReadAll(capture.Stdout())
	require.NoError(t, err)
	stderr, err := io.ReadAll(capture.Stderr())
	require.NoError(t, err)
	return ok, string(stdout), string(stderr)
}

func TestVariableDeclarationCommits(t *testing.T) {
	r := newTestRunner(t)

	ok, stdout, stderr := runCaptured(t, r, " var a = 10 ")
	assert.True(t, ok)
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)

	require.Len(t, r.State().Codes, 1)
	assert.Contains(t, r.State().Codes[0], "var a = 10")
	assert.Equal(t, 10, r.State().FieldValues["a"])
}

func TestBlockExecutesAndPrints(t *testing.T) {
	r := newTestRunner(t)

	ok, _, _ := runCaptured(t, r, `import "fmt"`)
	require.True(t, ok)
	assert.Equal(t, []string{`import "fmt"`}, r.State().Imports)

	ok, stdout, stderr := runCaptured(t, r, " { x := 10; fmt.Println(x) } ")
	assert.True(t, ok)
	assert.Equal(t, "10\n", stdout)
	assert.Empty(t, stderr)
}

func TestBareStatementIsContractViolation(t *testing.T) {
	r := newTestRunner(t)
	var stderr bytes.Buffer

	ok := r.Run(context.Background(), " a = 10 ", io.Discard, &stderr)
	assert.False(t, ok)
	assert.Contains(t, stderr.String(), "For a code to run, wrap it in a block")
}

func TestCompileErrorLeavesStateUntouched(t *testing.T) {
	r := newTestRunner(t)
	require.True(t, r.Run(context.Background(), "var base = 1", io.Discard, io.Discard))

	before := r.State().Clone()
	var stderr bytes.Buffer
	ok := r.Run(context.Background(), "{ undefinedFunc() }", io.Discard, &stderr)
	assert.False(t, ok)
	assert.Contains(t, stderr.String(), "undefined")

	if diff := cmp.Diff(before, r.State()); diff != "" {
		t.Fatalf("state changed after failed fragment (-before +after):\n%s", diff)
	}
}

func TestBlockCompileErrorShowsUserSource(t *testing.T) {
	r := newTestRunner(t)

	var stderr bytes.Buffer
	ok := r.Run(context.Background(), "{ undefinedFunc() }", io.Discard, &stderr)
	assert.False(t, ok)
	assert.Contains(t, stderr.String(), "{ undefinedFunc() }",
		"diagnostics must quote the user's own line")
	assert.NotContains(t, stderr.String(), "func() {",
		"the synthesized wrapper must never leak into diagnostics")
}

func TestDeclarationCompileErrorLeavesStateUntouched(t *testing.T) {
	r := newTestRunner(t)
	before := r.State().Clone()

	var stderr bytes.Buffer
	ok := r.Run(context.Background(), "var x = missingThing", io.Discard, &stderr)
	assert.False(t, ok)
	assert.NotEmpty(t, stderr.String())

	if diff := cmp.Diff(before, r.State()); diff != "" {
		t.Fatalf("state changed after failed declaration (-before +after):\n%s", diff)
	}
}

func TestTypeDefinitionThenReference(t *testing.T) {
	r := newTestRunner(t)

	ok := r.Run(context.Background(), "type Point struct {\n\tX int\n}", io.Discard, io.Discard)
	require.True(t, ok)
	assert.True(t, r.State().Codes[0] != "", "type source must accumulate")

	ok = r.Run(context.Background(), "var origin Point", io.Discard, io.Discard)
	assert.True(t, ok, "a later fragment must reference an earlier type")
	assert.Len(t, r.State().Codes, 2)
}

func TestBlockMutatesAccumulatedField(t *testing.T) {
	r := newTestRunner(t)
	require.True(t, r.Run(context.Background(), "var a = 10", io.Discard, io.Discard))
	require.Equal(t, 10, r.State().FieldValues["a"])

	ok := r.Run(context.Background(), "{ a = 20 }", io.Discard, io.Discard)
	require.True(t, ok)
	assert.Equal(t, 20, r.State().FieldValues["a"],
		"done hook must capture updated field values")
}

func TestRuntimePanicReportsAndKeepsDeclarations(t *testing.T) {
	r := newTestRunner(t)
	require.True(t, r.Run(context.Background(), "var kept = 5", io.Discard, io.Discard))

	var stderr bytes.Buffer
	ok := r.Run(context.Background(), `{ panic("boom") }`, io.Discard, &stderr)
	assert.False(t, ok)
	assert.Contains(t, stderr.String(), "boom")

	// Declarations committed before the failed run remain in effect.
	assert.Equal(t, 5, r.State().FieldValues["kept"])
	ok = r.Run(context.Background(), "{ kept = 6 }", io.Discard, io.Discard)
	assert.True(t, ok)
	assert.Equal(t, 6, r.State().FieldValues["kept"])
}

func TestFailedRunDoesNotRecaptureFields(t *testing.T) {
	r := newTestRunner(t)
	require.True(t, r.Run(context.Background(), "var n = 1", io.Discard, io.Discard))

	ok := r.Run(context.Background(), `{ n = 2; panic("after mutation") }`, io.Discard, io.Discard)
	assert.False(t, ok)
	assert.Equal(t, 1, r.State().FieldValues["n"],
		"the done hook is skipped on the exceptional path, so the captured value stays stale")
}

func TestMonotonicAccumulation(t *testing.T) {
	r := newTestRunner(t)
	fragments := []string{
		`import "strings"`,
		"var s = \"go\"",
		"func shout(in string) string { return strings.ToUpper(in) }",
		"{ s = shout(s) }",
	}
	var prevCodes, prevImports []string
	for _, code := range fragments {
		require.True(t, r.Run(context.Background(), code, io.Discard, io.Discard), "fragment %q", code)
		require.True(t, len(r.State().Codes) >= len(prevCodes))
		require.True(t, len(r.State().Imports) >= len(prevImports))
		if diff := cmp.Diff(prevCodes, r.State().Codes[:len(prevCodes)], cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("prior codes changed (-prev +now):\n%s", diff)
		}
		if diff := cmp.Diff(prevImports, r.State().Imports[:len(prevImports)], cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("prior imports changed (-prev +now):\n%s", diff)
		}
		prevCodes = append([]string(nil), r.State().Codes...)
		prevImports = append([]string(nil), r.State().Imports...)
	}
	assert.Equal(t, "GO", r.State().FieldValues["s"])
}

func TestDuplicateImportIsIdempotent(t *testing.T) {
	r := newTestRunner(t)
	require.True(t, r.Run(context.Background(), `import "fmt"`, io.Discard, io.Discard))

	ok, _, stderr := runCaptured(t, r, `import "fmt"`)
	assert.True(t, ok, "resubmitting an import must succeed")
	assert.Empty(t, stderr)
	assert.Equal(t, []string{`import "fmt"`}, r.State().Imports)

	// The import stays usable after the resubmission.
	ok, stdout, _ := runCaptured(t, r, `{ fmt.Println("still here") }`)
	assert.True(t, ok)
	assert.Equal(t, "still here\n", stdout)
}

func TestResubmittedImportWithNewDeclaration(t *testing.T) {
	r := newTestRunner(t)
	require.True(t, r.Run(context.Background(), "import \"strings\"\n\nvar first = strings.ToUpper(\"a\")", io.Discard, io.Discard))

	// Re-running a cell whose import is already in the session only compiles
	// the new declarations.
	ok := r.Run(context.Background(), "import \"strings\"\n\nvar second = strings.ToUpper(\"b\")", io.Discard, io.Discard)
	require.True(t, ok)
	assert.Equal(t, []string{`import "strings"`}, r.State().Imports)
	assert.Equal(t, "A", r.State().FieldValues["first"])
	assert.Equal(t, "B", r.State().FieldValues["second"])
}

func TestMixedImportAndDeclarationFragment(t *testing.T) {
	r := newTestRunner(t)
	code := "import \"strings\"\n\nvar prefix = strings.Repeat(\"-\", 3)"
	require.True(t, r.Run(context.Background(), code, io.Discard, io.Discard))

	assert.Equal(t, []string{`import "strings"`}, r.State().Imports)
	require.Len(t, r.State().Codes, 1)
	assert.Contains(t, r.State().Codes[0], "var prefix")
	assert.False(t, strings.Contains(r.State().Codes[0], "import"),
		"imports must not leak into accumulated codes")
	assert.Equal(t, "---", r.State().FieldValues["prefix"])
}

func TestEmptyFragmentIsNoOp(t *testing.T) {
	r := newTestRunner(t)
	before := r.State().Clone()
	assert.True(t, r.Run(context.Background(), "   \n\t  ", io.Discard, io.Discard))
	if diff := cmp.Diff(before, r.State()); diff != "" {
		t.Fatalf("empty fragment mutated state:\n%s", diff)
	}
}

func TestScopeAdvancesOncePerExecutedBlock(t *testing.T) {
	comp, err := compile.New(compile.Options{})
	require.NoError(t, err)
	r := NewRunner(comp, NewExecutionState())

	require.True(t, r.Run(context.Background(), "var g = 0", io.Discard, io.Discard))
	gen := comp.Scope().Generation()

	require.True(t, r.Run(context.Background(), "{ g = 1 }", io.Discard, io.Discard))
	assert.Equal(t, gen+1, comp.Scope().Generation())

	// A failed block does not advance the chain.
	require.False(t, r.Run(context.Background(), `{ panic("no") }`, io.Discard, io.Discard))
	assert.Equal(t, gen+1, comp.Scope().Generation())
}
