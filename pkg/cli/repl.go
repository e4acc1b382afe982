// pkg/cli/repl.go
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"mavibot/pkg/btree"
	"mavibot/pkg/engine"
)

// REPL provides a Read-Eval-Print Loop for interacting with a mavibot store
// through a small set of key/value commands, in place of turdb's SQL
// dispatch: createtree, put, get, delete, scan, begin/commit/abort, plus the
// dot-commands.
type REPL struct {
	eng *engine.Engine

	shell *Shell

	output    io.Writer
	errOutput io.Writer

	running       bool
	exitRequested bool

	// tx is the open write transaction started by "begin", or nil when the
	// REPL is running every command as its own autocommit transaction.
	tx *writeSession
}

// writeSession tracks an explicitly opened, not-yet-closed write
// transaction so begin/commit/abort can span several commands.
type writeSession struct {
	txn *txnFacade
}

// NewREPL creates a new REPL with the given database path, reading commands
// from os.Stdin. Output is written to output and errors to errOutput.
func NewREPL(dbPath string, output, errOutput io.Writer) (*REPL, error) {
	return NewREPLWithInput(dbPath, os.Stdin, output, errOutput)
}

// NewREPLWithInput creates a REPL reading commands from input instead of
// os.Stdin, for scripting and tests.
func NewREPLWithInput(dbPath string, input io.Reader, output, errOutput io.Writer) (*REPL, error) {
	eng, err := engine.Open(dbPath, engine.Options{})
	if err != nil {
		return nil, err
	}
	shell := NewShell(input, output, errOutput)
	return &REPL{
		eng:       eng,
		shell:     shell,
		output:    output,
		errOutput: errOutput,
	}, nil
}

// Close releases the underlying engine.
func (r *REPL) Close() error {
	if r.tx != nil {
		r.tx.txn.abort()
		r.tx = nil
	}
	return r.eng.Close()
}

// Run executes the read-eval-print loop until .exit, .quit, or EOF.
func (r *REPL) Run() {
	r.running = true
	fmt.Fprintln(r.output, "mavibot interactive shell. Type .help for commands.")
	for r.running {
		line, eof := r.shell.ReadCommand()
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			r.Execute(trimmed)
		}
		if eof || r.exitRequested {
			r.running = false
		}
	}
}

// Execute runs a single command line, writing results or an error to the
// REPL's output streams.
func (r *REPL) Execute(line string) {
	if strings.HasPrefix(line, ".") {
		r.runDotCommand(line)
		return
	}
	fields := splitFields(line)
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	var err error
	switch cmd {
	case "createtree":
		err = r.cmdCreateTree(args)
	case "put":
		err = r.cmdPut(args)
	case "get":
		err = r.cmdGet(args)
	case "delete":
		err = r.cmdDelete(args)
	case "scan":
		err = r.cmdScan(args)
	case "begin":
		err = r.cmdBegin(args)
	case "commit":
		err = r.cmdCommit(args)
	case "abort":
		err = r.cmdAbort(args)
	default:
		err = fmt.Errorf("unknown command %q (try .help)", fields[0])
	}
	if err != nil {
		fmt.Fprintf(r.errOutput, "error: %v\n", err)
	}
}

func (r *REPL) runDotCommand(line string) {
	fields := splitFields(line)
	switch fields[0] {
	case ".exit", ".quit":
		r.exitRequested = true
	case ".help":
		r.printHelp()
	case ".reclaim":
		r.eng.Reclaim()
		fmt.Fprintln(r.output, "reclamation pass requested")
	default:
		fmt.Fprintf(r.errOutput, "error: unknown command %q\n", fields[0])
	}
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.output, `Commands:
  createtree <name> [--dup] [--fanout N]   register a new tree
  put <tree> <key> <value>                 insert or overwrite a key
  get <tree> <key>                         read a key
  delete <tree> <key> [value]              remove a key (or one duplicate value)
  scan <tree> [fromKey]                    list every key/value in order
  begin                                    open an explicit write transaction
  commit                                   commit the open write transaction
  abort                                    abort the open write transaction
  .reclaim                                 request an out-of-band reclamation pass
  .exit, .quit                             leave the shell
`)
}

// txnFacade lets command handlers share one code path whether they are
// running inside an explicit "begin...commit" bracket or as their own
// autocommit transaction.
type txnFacade struct {
	w         *engineWriteTxn
	autoclose bool
}

type engineWriteTxn = interface {
	Insert(tree string, key, value []byte) (*btree.InsertOutcome, error)
	Delete(tree string, key, value []byte) ([]byte, error)
	Commit() error
	Abort() error
}

func (t *txnFacade) abort() {
	if t.w != nil {
		t.w.Abort()
	}
}

// beginOrReuse returns the REPL's open transaction if "begin" is in effect,
// else opens and returns a fresh one the caller must commit itself.
func (r *REPL) beginOrReuse() (*txnFacade, error) {
	if r.tx != nil {
		return r.tx.txn, nil
	}
	w, err := r.eng.BeginWrite()
	if err != nil {
		return nil, err
	}
	return &txnFacade{w: w, autoclose: true}, nil
}

func (t *txnFacade) finish(err error) error {
	if !t.autoclose {
		return err
	}
	if err != nil {
		t.w.Abort()
		return err
	}
	return t.w.Commit()
}

func (r *REPL) cmdCreateTree(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: createtree <name> [--dup] [--fanout N]")
	}
	name := args[0]
	opts := btree.Options{FanOut: 32, KeyCodecID: "bytes", ValueCodecID: "bytes"}
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--dup":
			opts.AllowDuplicates = true
		case "--fanout":
			if i+1 >= len(args) {
				return fmt.Errorf("--fanout requires a value")
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return fmt.Errorf("invalid fanout %q", args[i])
			}
			opts.FanOut = n
		default:
			return fmt.Errorf("unrecognized option %q", args[i])
		}
	}
	if err := r.eng.CreateTree(name, opts); err != nil {
		return err
	}
	fmt.Fprintf(r.output, "tree %q created\n", name)
	return nil
}

func (r *REPL) cmdPut(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: put <tree> <key> <value>")
	}
	t, err := r.beginOrReuse()
	if err != nil {
		return err
	}
	_, err = t.w.Insert(args[0], []byte(args[1]), []byte(args[2]))
	if err := t.finish(err); err != nil {
		return err
	}
	fmt.Fprintln(r.output, "OK")
	return nil
}

func (r *REPL) cmdGet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: get <tree> <key>")
	}
	rt, err := r.eng.BeginRead(30 * time.Second)
	if err != nil {
		return err
	}
	defer rt.Close()
	val, err := rt.Get(args[0], []byte(args[1]))
	if err != nil {
		return err
	}
	fmt.Fprintln(r.output, string(val))
	return nil
}

func (r *REPL) cmdDelete(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: delete <tree> <key> [value]")
	}
	var value []byte
	if len(args) == 3 {
		value = []byte(args[2])
	}
	t, err := r.beginOrReuse()
	if err != nil {
		return err
	}
	_, err = t.w.Delete(args[0], []byte(args[1]), value)
	if err := t.finish(err); err != nil {
		return err
	}
	fmt.Fprintln(r.output, "OK")
	return nil
}

func (r *REPL) cmdScan(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: scan <tree> [fromKey]")
	}
	rt, err := r.eng.BeginRead(30 * time.Second)
	if err != nil {
		return err
	}
	defer rt.Close()

	var cur interface {
		Valid() bool
		Key() []byte
		Value() ([]byte, error)
		Next() error
	}
	if len(args) >= 2 {
		cur, err = rt.BrowseFrom(args[0], []byte(args[1]))
	} else {
		var c *btree.Cursor
		c, err = rt.Browse(args[0])
		if err == nil {
			err = c.First()
		}
		cur = c
	}
	if err != nil {
		return err
	}
	count := 0
	for cur.Valid() {
		val, err := cur.Value()
		if err != nil {
			return err
		}
		fmt.Fprintf(r.output, "%s = %s\n", cur.Key(), val)
		count++
		if err := cur.Next(); err != nil {
			return err
		}
	}
	fmt.Fprintf(r.output, "(%d entries)\n", count)
	return nil
}

func (r *REPL) cmdBegin(args []string) error {
	if r.tx != nil {
		return fmt.Errorf("a write transaction is already open")
	}
	w, err := r.eng.BeginWrite()
	if err != nil {
		return err
	}
	r.tx = &writeSession{txn: &txnFacade{w: w, autoclose: false}}
	fmt.Fprintln(r.output, "write transaction started")
	return nil
}

func (r *REPL) cmdCommit(args []string) error {
	if r.tx == nil {
		return fmt.Errorf("no write transaction is open")
	}
	err := r.tx.txn.w.Commit()
	r.tx = nil
	if err != nil {
		return err
	}
	fmt.Fprintln(r.output, "committed")
	return nil
}

func (r *REPL) cmdAbort(args []string) error {
	if r.tx == nil {
		return fmt.Errorf("no write transaction is open")
	}
	err := r.tx.txn.w.Abort()
	r.tx = nil
	if err != nil {
		return err
	}
	fmt.Fprintln(r.output, "aborted")
	return nil
}

// splitFields splits on whitespace but keeps the implementation obvious
// rather than reaching for a quoting-aware tokenizer: quoting keys/values
// with embedded spaces is not supported from this shell.
func splitFields(line string) []string {
	return strings.Fields(line)
}
