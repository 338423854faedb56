package vm

import (
	"fmt"
	"io"
)

// Tracer receives execution events. The VM's Tracer field is nil unless
// the host wires one up, and every call site guards on it the way
// emul/cpu.go guards every "if cpu.tracer != nil" check so tracing costs
// nothing when off.
type Tracer interface {
	TraceFetch(ip int, opcode byte)
	TraceOpcode(ip int, name string, depthBefore, depthAfter int)
	TraceCall(from, to int)
	TraceError(err error)
}

// FileTracer writes a human-readable execution trace to an io.Writer,
// mirroring emul/trace.go's file-backed Tracer built from a -trace flag.
type FileTracer struct {
	out io.Writer
}

// NewFileTracer wraps w as a Tracer.
func NewFileTracer(w io.Writer) *FileTracer {
	return &FileTracer{out: w}
}

func (t *FileTracer) TraceFetch(ip int, opcode byte) {
	fmt.Fprintf(t.out, "fetch ip=%d op=0x%02X\n", ip, opcode)
}

func (t *FileTracer) TraceOpcode(ip int, name string, depthBefore, depthAfter int) {
	fmt.Fprintf(t.out, "  %-16s depth %d -> %d\n", name, depthBefore, depthAfter)
}

func (t *FileTracer) TraceCall(from, to int) {
	fmt.Fprintf(t.out, "call %d -> %d\n", from, to)
}

func (t *FileTracer) TraceError(err error) {
	fmt.Fprintf(t.out, "error: %v\n", err)
}
