// Command tacit is the REPL and file-loader driver for the Tacit
// language core: it wires internal/lexer, internal/compiler and
// internal/vm together the way emul/main.go wires the CPU, tracer and
// binary loader together, generalized from a fixed binary format to
// incremental postfix source compiled one chunk at a time.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/term"

	tacit "github.com/tacitlang/tacit"
	"github.com/tacitlang/tacit/internal/vm"
)

var (
	traceFile    = flag.String("trace", "", "write an execution trace to this file")
	debug        = flag.Bool("debug", false, "enable single-step debug mode")
	saveImage    = flag.String("save", "", "on clean exit, write the compiled bytecode image (zstd-compressed) to this path")
	loadImage    = flag.String("load", "", "preload a bytecode image saved with -save before running the given source")
	dumpBytecode = flag.Bool("dump-bytecode", false, "print a disassembly of the code segment to stderr after running")
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] [source-file]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Tacit language core: REPL when no source-file is given, otherwise\n")
	fmt.Fprintf(os.Stderr, "loads and runs the file, stopping at the first error.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	v := vm.New()

	if *traceFile != "" {
		f, err := os.Create(*traceFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tacit: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		v.Tracer = vm.NewFileTracer(f)
	}
	v.Debug = *debug

	if *loadImage != "" {
		if err := loadBytecodeImage(v, *loadImage); err != nil {
			fmt.Fprintf(os.Stderr, "tacit: loading %s: %v\n", *loadImage, err)
			os.Exit(1)
		}
	}

	args := flag.Args()
	if len(args) == 0 {
		runREPL(v)
		if *dumpBytecode {
			fmt.Fprint(os.Stderr, vm.Disassemble(v.Code))
		}
		return
	}

	code, _ := runFile(v, args[0])
	if *saveImage != "" && code == 0 {
		if err := saveBytecodeImage(v, *saveImage); err != nil {
			fmt.Fprintf(os.Stderr, "tacit: saving %s: %v\n", *saveImage, err)
			os.Exit(1)
		}
	}
	if *dumpBytecode {
		fmt.Fprint(os.Stderr, vm.Disassemble(v.Code))
	}
	os.Exit(code)
}

// runFile loads source-file, compiling and running it one non-blank,
// non-comment line at a time, stopping at the first error. Returns the
// process exit code: 0 on a clean run through the whole file, 1 on any
// compile or runtime error.
func runFile(v *vm.VM, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tacit: %v\n", err)
		return 1, err
	}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := tacit.RunIn(v, line); err != nil {
			fmt.Fprintf(os.Stderr, "%s:%d: %v\n", path, lineNo, err)
			return 1, err
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "tacit: %v\n", err)
		return 1, err
	}
	return 0, nil
}

// stdioTerm adapts os.Stdin/os.Stdout into the io.ReadWriter
// golang.org/x/term.NewTerminal expects, the same raw-mode wiring
// emul/main.go's setupTerminal/restoreTerminal pair does for console
// I/O, generalized here to a line-editing REPL instead of a raw UART.
type stdioTerm struct {
	in  io.Reader
	out io.Writer
}

func (s stdioTerm) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s stdioTerm) Write(p []byte) (int, error) { return s.out.Write(p) }

func runREPL(v *vm.VM) {
	fmt.Fprintf(os.Stderr, "Tacit %s\n", version)

	isTTY := term.IsTerminal(int(os.Stdin.Fd()))
	var oldState *term.State
	if isTTY {
		var err error
		oldState, err = term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			isTTY = false
		} else {
			defer term.Restore(int(os.Stdin.Fd()), oldState)
		}
	}

	t := term.NewTerminal(stdioTerm{in: os.Stdin, out: os.Stdout}, "tacit> ")
	for {
		line, err := t.ReadLine()
		if err != nil {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "\r\ntacit: %v\r\n", err)
			}
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ":quit" || line == ":exit" {
			break
		}
		if _, err := tacit.RunIn(v, line); err != nil {
			fmt.Fprintf(t, "error: %v\r\n", err)
			continue
		}
		if v.Depth() > 0 {
			top, _ := v.Peek()
			fmt.Fprintf(t, "%s\r\n", top.String())
		}
	}
}

// saveBytecodeImage persists v's compiled code segment, zstd-compressed.
// Only the code bytes are written; the dictionary and string segment are
// not.
func saveBytecodeImage(v *vm.VM, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if _, err := w.Write(v.Code.Bytes()); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// loadBytecodeImage restores a previously saved code segment into a
// fresh VM's code segment, ahead of compiling any new source.
func loadBytecodeImage(v *vm.VM, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = v.Code.Append(data)
	return err
}
