// Package shell turns a line of input into a command.Command.
//
// Lines are parsed with the POSIX grammar of mvdan.cc/sh and then narrowed to
// what the executor can run: one simple command, optionally backgrounded, or
// a chain of simple commands joined by a single kind of operator (&&, || or
// |). Words must be literal; quotes and backslash escapes are removed but no
// expansion takes place.
package shell

import (
	"errors"
	"fmt"
	"strings"

	"github.com/josephlewis42/bshell/core/command"
	"mvdan.cc/sh/v3/syntax"
)

// SyntaxError is returned for lines that can't be parsed or use syntax the
// shell doesn't support.
type SyntaxError struct {
	Col uint
	Msg string
}

func (e *SyntaxError) Error() string {
	if e.Col == 0 {
		return fmt.Sprintf("syntax error: %s", e.Msg)
	}
	return fmt.Sprintf("syntax error near column %d: %s", e.Col, e.Msg)
}

var chainKinds = map[syntax.BinCmdOperator]command.Kind{
	syntax.AndStmt: command.AllMustSucceed,
	syntax.OrStmt:  command.FirstSuccessWins,
	syntax.Pipe:    command.Pipeline,
}

var unsupportedNodes = map[string]string{
	"ParamExp":    "parameter expansion is not supported",
	"CmdSubst":    "command substitution is not supported",
	"ArithmExp":   "arithmetic expansion is not supported",
	"ProcSubst":   "process substitution is not supported",
	"ExtGlob":     "extended globbing is not supported",
	"Subshell":    "subshells are not supported",
	"Block":       "blocks are not supported",
	"IfClause":    "if clauses are not supported",
	"WhileClause": "loops are not supported",
	"ForClause":   "loops are not supported",
	"CaseClause":  "case clauses are not supported",
	"FuncDecl":    "functions are not supported",
	"ArithmCmd":   "arithmetic commands are not supported",
	"TestClause":  "test clauses are not supported",
	"DeclClause":  "declarations are not supported",
	"LetClause":   "let clauses are not supported",
	"TimeClause":  "time clauses are not supported",
}

// Parse parses one line of input.
func Parse(line string) (command.Command, error) {
	line = strings.TrimSuffix(line, "\n")

	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	file, err := parser.Parse(strings.NewReader(line), "")
	if err != nil {
		return nil, wrapParseError(err)
	}

	switch len(file.Stmts) {
	case 0:
		return command.Empty{}, nil
	case 1:
		// ok
	default:
		return nil, errorAt(file.Stmts[1], "command lists are not supported")
	}

	stmt := file.Stmts[0]
	if err := checkStmt(stmt); err != nil {
		return nil, err
	}

	switch cmd := stmt.Cmd.(type) {
	case nil:
		return command.Empty{}, nil

	case *syntax.CallExpr:
		inv, err := invocation(cmd)
		if err != nil {
			return nil, err
		}
		inv.Background = stmt.Background
		return command.Single{Invocation: inv}, nil

	case *syntax.BinaryCmd:
		if stmt.Background {
			return nil, errorAt(stmt, "running a chain in the background is not supported")
		}
		kind, ok := chainKinds[cmd.Op]
		if !ok {
			return nil, errorAt(cmd, fmt.Sprintf("%s is not supported", cmd.Op))
		}

		var invocations []command.Invocation
		if err := flatten(cmd.Op, stmt, &invocations); err != nil {
			return nil, err
		}
		chain, err := command.NewChain(kind, invocations...)
		if err != nil {
			return nil, &SyntaxError{Msg: err.Error()}
		}
		return chain, nil

	default:
		return nil, unsupported(cmd)
	}
}

// flatten appends the simple commands of a tree of op to out, left to right.
func flatten(op syntax.BinCmdOperator, stmt *syntax.Stmt, out *[]command.Invocation) error {
	if err := checkStmt(stmt); err != nil {
		return err
	}

	switch cmd := stmt.Cmd.(type) {
	case *syntax.BinaryCmd:
		if cmd.Op != op {
			return errorAt(cmd, fmt.Sprintf("mixing %s and %s is not supported", op, cmd.Op))
		}
		if err := flatten(op, cmd.X, out); err != nil {
			return err
		}
		return flatten(op, cmd.Y, out)

	case *syntax.CallExpr:
		inv, err := invocation(cmd)
		if err != nil {
			return err
		}
		*out = append(*out, inv)
		return nil

	case nil:
		return errorAt(stmt, fmt.Sprintf("%s must be followed by a command", op))

	default:
		return unsupported(cmd)
	}
}

func checkStmt(stmt *syntax.Stmt) error {
	switch {
	case len(stmt.Redirs) > 0:
		return errorAt(stmt.Redirs[0], "redirection is not supported")
	case stmt.Negated:
		return errorAt(stmt, "negation is not supported")
	case stmt.Coprocess:
		return errorAt(stmt, "coprocesses are not supported")
	}
	return nil
}

func invocation(call *syntax.CallExpr) (command.Invocation, error) {
	if len(call.Assigns) > 0 {
		return command.Invocation{}, errorAt(call.Assigns[0], "variable assignment is not supported")
	}

	argv := make([]string, 0, len(call.Args))
	for _, word := range call.Args {
		arg, err := literal(word)
		if err != nil {
			return command.Invocation{}, err
		}
		argv = append(argv, arg)
	}

	return command.Invocation{Program: argv[0], Args: argv[1:]}, nil
}

// literal returns the value of a word with quoting removed.
func literal(word *syntax.Word) (string, error) {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch part := part.(type) {
		case *syntax.Lit:
			sb.WriteString(unescape(part.Value, false))

		case *syntax.SglQuoted:
			if part.Dollar {
				return "", errorAt(part, "$'' strings are not supported")
			}
			sb.WriteString(part.Value)

		case *syntax.DblQuoted:
			if part.Dollar {
				return "", errorAt(part, `$"" strings are not supported`)
			}
			for _, inner := range part.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", unsupported(inner)
				}
				sb.WriteString(unescape(lit.Value, true))
			}

		default:
			return "", unsupported(part)
		}
	}
	return sb.String(), nil
}

// unescape removes backslash escapes. Inside double quotes a backslash only
// escapes $, `, ", \ and newline.
func unescape(s string, quoted bool) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			next := s[i+1]
			if !quoted || strings.IndexByte("$`\"\\\n", next) >= 0 {
				i++
				if next != '\n' {
					sb.WriteByte(next)
				}
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func unsupported(node syntax.Node) error {
	name := strings.TrimPrefix(fmt.Sprintf("%T", node), "*syntax.")
	if msg, ok := unsupportedNodes[name]; ok {
		return errorAt(node, msg)
	}
	return errorAt(node, fmt.Sprintf("%s is not supported", name))
}

func errorAt(node syntax.Node, msg string) error {
	return &SyntaxError{Col: node.Pos().Col(), Msg: msg}
}

func wrapParseError(err error) error {
	var parseErr syntax.ParseError
	if errors.As(err, &parseErr) {
		return &SyntaxError{Col: parseErr.Pos.Col(), Msg: parseErr.Text}
	}

	var langErr syntax.LangError
	if errors.As(err, &langErr) {
		return &SyntaxError{Col: langErr.Pos.Col(), Msg: fmt.Sprintf("%s is not supported", langErr.Feature)}
	}

	return &SyntaxError{Msg: err.Error()}
}
