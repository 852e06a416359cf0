package compile

import (
	"errors"
	"fmt"
	"go/scanner"
	"regexp"
	"strconv"
	"strings"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// Diagnostic is one compiler message with a 1-based source position.
type Diagnostic struct {
	Line     int
	Column   int
	Message  string
	Severity Severity
}

// DiagnosticList is the full output of one compile.
type DiagnosticList []Diagnostic

// HasErrors is the sole gate distinguishing a successful compile; callers
// must check it before treating the compiled program as usable.
func (d DiagnosticList) HasErrors() bool {
	for _, diag := range d {
		if diag.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Render formats diagnostics against the source they were produced from.
// Each diagnostic shows the offending line, a caret under the exact column
// (preserving leading tabs so the caret lines up), and the message.
func Render(src string, diags DiagnosticList) string {
	lines := strings.Split(src, "\n")
	var b strings.Builder
	for _, d := range diags {
		if d.Line >= 1 && d.Line <= len(lines) {
			line := lines[d.Line-1]
			b.WriteString(line)
			b.WriteByte('\n')
			b.WriteString(caret(line, d.Column))
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s\n", d.Message)
	}
	return b.String()
}

func caret(line string, column int) string {
	if column < 1 {
		column = 1
	}
	var b strings.Builder
	for i := 0; i < column-1; i++ {
		if i < len(line) && line[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteByte('^')
	return b.String()
}

// posRe matches the "line:column: message" shape the toolchain uses for
// single errors, with or without a leading file name.
var posRe = regexp.MustCompile(`(\d+):(\d+): (.*)`)

// toDiagnostics converts a toolchain error into positioned diagnostics.
// Parse errors arrive as a scanner.ErrorList; resolution errors as a single
// formatted error. Anything unrecognized lands at 1:1 so it is never lost.
func toDiagnostics(err error, lineOffset int) DiagnosticList {
	if err == nil {
		return nil
	}
	var list scanner.ErrorList
	if errors.As(err, &list) {
		diags := make(DiagnosticList, 0, len(list))
		for _, e := range list {
			diags = append(diags, Diagnostic{
				Line:     e.Pos.Line - lineOffset,
				Column:   e.Pos.Column,
				Message:  e.Msg,
				Severity: SeverityError,
			})
		}
		return diags
	}
	if m := posRe.FindStringSubmatch(err.Error()); m != nil {
		line, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])
		return DiagnosticList{{Line: line - lineOffset, Column: col, Message: m[3], Severity: SeverityError}}
	}
	return DiagnosticList{{Line: 1, Column: 1, Message: err.Error(), Severity: SeverityError}}
}
