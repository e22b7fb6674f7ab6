// Command purestar reports the safely evaluable subexpressions of Starlark
// source under a set of known bindings.
//
//	purestar -b x=1 -e 'x + 1'
//	purestar -b cfg='{"debug": True}' build.star
//	purestar -i
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/fmeum/purestar"
)

const historyFile = ".purestar_history"

var opts = &syntax.FileOptions{}

func main() {
	bindings := flag.StringArrayP("bind", "b", nil, "binding of the form name=expr; expr may use earlier bindings")
	expr := flag.StringP("expr", "e", "", "analyze a single expression instead of a file")
	interactive := flag.BoolP("interactive", "i", false, "start an interactive session")
	flag.Parse()

	names := starlark.StringDict{}
	for _, b := range *bindings {
		if err := addBinding(names, b); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	switch {
	case *interactive:
		os.Exit(repl(names))
	case *expr != "":
		e, err := opts.ParseExpr("<expr>", *expr, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
			os.Exit(1)
		}
		printGroups(purestar.NewEvaluator(names).InterestingGroupedExpressions(e))
	case flag.NArg() == 1:
		filename := flag.Arg(0)
		src, err := os.ReadFile(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading %s: %v\n", filename, err)
			os.Exit(1)
		}
		f, err := opts.Parse(filename, src, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
			os.Exit(1)
		}
		printGroups(purestar.NewEvaluator(names).InterestingGroupedExpressions(f))
	default:
		fmt.Fprintln(os.Stderr, "usage: purestar [-b name=expr]... (-e expr | -i | file)")
		os.Exit(2)
	}
}

// addBinding parses "name=expr" and evaluates the right-hand side under the
// bindings accumulated so far, with the same safety rules as analysis.
func addBinding(names starlark.StringDict, b string) error {
	name, src, ok := strings.Cut(b, "=")
	if !ok {
		return fmt.Errorf("binding %q is not of the form name=expr", b)
	}
	name = strings.TrimSpace(name)
	e, err := opts.ParseExpr("<binding>", src, 0)
	if err != nil {
		return fmt.Errorf("binding %s: %v", name, err)
	}
	v, err := purestar.NewEvaluator(names).Eval(e)
	if err != nil {
		return fmt.Errorf("binding %s: %v", name, err)
	}
	names[name] = v
	return nil
}

func printGroups(groups []purestar.ValueGroup) {
	for _, g := range groups {
		exprs := make([]string, len(g.Exprs))
		for i, e := range g.Exprs {
			exprs[i] = purestar.ExprString(e)
		}
		fmt.Printf("%s = %s\n", strings.Join(exprs, ", "), purestar.ValueString(g.Value))
	}
}

// repl reads lines interactively: "name = expr" adds a binding, a bare
// expression is analyzed, :quit exits.
func repl(names starlark.StringDict) int {
	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		line, err := ln.Prompt("> ")
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Fprintln(os.Stderr, err.Error())
			}
			fmt.Println()
			return 0
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ":quit" {
			return 0
		}
		ln.AppendHistory(line)

		if name, rhs, ok := splitBinding(line); ok {
			v, err := purestar.NewEvaluator(names).Eval(rhs)
			if err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				continue
			}
			names[name] = v
			continue
		}

		e, err := opts.ParseExpr("<repl>", line, 0)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			continue
		}
		// Bindings may have changed since the last line, so the session
		// cache must not carry over.
		groups := purestar.NewEvaluator(names).InterestingGroupedExpressions(e)
		if len(groups) == 0 {
			fmt.Println("no evaluable expressions")
			continue
		}
		printGroups(groups)
	}
}

// splitBinding recognizes a single "name = expr" statement and returns the
// parsed right-hand side.
func splitBinding(line string) (string, syntax.Expr, bool) {
	f, err := opts.Parse("<repl>", []byte(line), 0)
	if err != nil || len(f.Stmts) != 1 {
		return "", nil, false
	}
	assign, ok := f.Stmts[0].(*syntax.AssignStmt)
	if !ok || assign.Op != syntax.EQ {
		return "", nil, false
	}
	lhs, ok := assign.LHS.(*syntax.Ident)
	if !ok {
		return "", nil, false
	}
	return lhs.Name, assign.RHS, true
}
