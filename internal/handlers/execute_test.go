package handlers

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googledatalab/igo/internal/compile"
	"github.com/googledatalab/igo/internal/config"
	"github.com/googledatalab/igo/internal/fragment"
	"github.com/googledatalab/igo/internal/protocol"
)

func newExecuteHandler(t *testing.T, h *harness) *ExecuteHandler {
	t.Helper()
	comp, err := compile.New(compile.Options{})
	require.NoError(t, err)
	tuning := config.DefaultTuning()
	tuning.RunDeadline = 10 * time.Second
	return &ExecuteHandler{
		Resp:   h.resp,
		Frag:   fragment.NewRunner(comp, fragment.NewExecutionState()),
		Tuning: tuning,
	}
}

// cellResult gathers everything one Handle call produced.
type cellResult struct {
	reply  *protocol.ExecuteReply
	states []string
	stdout string
	stderr string
}

// runCell drives one execute_request through the handler and collects the
// reply plus all iopub traffic up to the idle transition.
func runCell(t *testing.T, h *harness, handler *ExecuteHandler, code string) cellResult {
	t.Helper()
	req := h.request(t, protocol.ExecuteRequestType, &protocol.ExecuteRequest{Code: code})
	require.NoError(t, handler.Handle(context.Background(), req))

	res := cellResult{}
	for {
		msg := h.readIOPub(t)
		switch content := msg.Content.(type) {
		case *protocol.Status:
			res.states = append(res.states, content.ExecutionState)
			assert.Equal(t, req.Header, msg.ParentHeader, "status must correlate to the request")
			if content.ExecutionState == protocol.StateIdle {
				reply := h.readShell(t)
				require.Equal(t, protocol.ExecuteReplyType, reply.Header.MsgType)
				res.reply = reply.Content.(*protocol.ExecuteReply)
				return res
			}
		case *protocol.Stream:
			switch content.Name {
			case protocol.StreamStdout:
				res.stdout += content.Text
			case protocol.StreamStderr:
				res.stderr += content.Text
			default:
				t.Fatalf("unexpected stream name %q", content.Name)
			}
		default:
			t.Fatalf("unexpected iopub content %T", msg.Content)
		}
	}
}

func TestExecuteEmptyCodeIsNoOp(t *testing.T) {
	h := newHarness(t)
	handler := newExecuteHandler(t, h)

	res := runCell(t, h, handler, "   \n  ")
	assert.Equal(t, protocol.StatusOK, res.reply.Status)
	assert.Equal(t, 0, res.reply.ExecutionCount, "empty submissions must not pollute numbering")
	assert.Equal(t, []string{protocol.StateBusy, protocol.StateIdle}, res.states)
	assert.Empty(t, res.stdout)
	assert.Empty(t, res.stderr)
	assert.Equal(t, 0, handler.ExecutionCount())
}

func TestExecutePrintingCell(t *testing.T) {
	h := newHarness(t)
	handler := newExecuteHandler(t, h)

	res := runCell(t, h, handler, `import "fmt"`)
	require.Equal(t, protocol.StatusOK, res.reply.Status)
	require.Equal(t, 1, res.reply.ExecutionCount)

	res = runCell(t, h, handler, "{ x := 10; fmt.Println(x) }")
	assert.Equal(t, protocol.StatusOK, res.reply.Status)
	assert.Equal(t, 2, res.reply.ExecutionCount)
	assert.Equal(t, "10\n", res.stdout)
	assert.Empty(t, res.stderr)
	assert.Equal(t, []string{protocol.StateBusy, protocol.StateIdle}, res.states)
}

func TestExecuteCompileErrorStillCounts(t *testing.T) {
	h := newHarness(t)
	handler := newExecuteHandler(t, h)

	res := runCell(t, h, handler, "{ thisDoesNotExist() }")
	assert.Equal(t, protocol.StatusError, res.reply.Status)
	assert.Equal(t, 1, res.reply.ExecutionCount,
		"the counter increments once per non-empty cell regardless of outcome")
	assert.Contains(t, res.stderr, "thisDoesNotExist")
	assert.Empty(t, res.stdout)
}

func TestExecuteBareStatementReportsContractViolation(t *testing.T) {
	h := newHarness(t)
	handler := newExecuteHandler(t, h)

	res := runCell(t, h, handler, " a = 10 ")
	assert.Equal(t, protocol.StatusError, res.reply.Status)
	assert.Contains(t, res.stderr, "For a code to run, wrap it in a block")
}

func TestExecuteStatePersistsAcrossCells(t *testing.T) {
	h := newHarness(t)
	handler := newExecuteHandler(t, h)

	require.Equal(t, protocol.StatusOK, runCell(t, h, handler, `import "fmt"`).reply.Status)
	require.Equal(t, protocol.StatusOK, runCell(t, h, handler, "var total = 0").reply.Status)
	require.Equal(t, protocol.StatusOK, runCell(t, h, handler, "{ total += 41; total++ }").reply.Status)

	res := runCell(t, h, handler, "{ fmt.Println(total) }")
	assert.Equal(t, protocol.StatusOK, res.reply.Status)
	assert.Equal(t, "42\n", res.stdout)
	assert.Equal(t, 4, res.reply.ExecutionCount)
}

func TestExecuteStreamsPreserveOrderWithinAStream(t *testing.T) {
	h := newHarness(t)
	handler := newExecuteHandler(t, h)

	require.Equal(t, protocol.StatusOK, runCell(t, h, handler, `import "fmt"`).reply.Status)
	res := runCell(t, h, handler, "{ for i := 0; i < 20; i++ { fmt.Println(i) } }")
	require.Equal(t, protocol.StatusOK, res.reply.Status)

	var want strings.Builder
	for i := 0; i < 20; i++ {
		want.WriteString(strconv.Itoa(i))
		want.WriteByte('\n')
	}
	assert.Equal(t, want.String(), res.stdout)
}
