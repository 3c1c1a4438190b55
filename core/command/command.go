// Package command holds the typed representation of a parsed command line.
package command

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyChain        = errors.New("chain must hold at least one invocation")
	ErrBackgroundInChain = errors.New("chain members can't run in the background")
)

// Invocation is a single program to run.
type Invocation struct {
	// Program is looked up on PATH.
	Program string
	// Args are passed verbatim and don't include Program.
	Args       []string
	Background bool
}

// Argv returns the program followed by its arguments.
func (inv Invocation) Argv() []string {
	return append([]string{inv.Program}, inv.Args...)
}

// String returns the display name of the invocation.
func (inv Invocation) String() string {
	out := strings.Join(inv.Argv(), " ")
	if inv.Background {
		out += " &"
	}
	return out
}

// Kind is the strategy used to combine the members of a Chain.
type Kind int

const (
	// AllMustSucceed runs members in order until one fails (&&).
	AllMustSucceed Kind = iota
	// FirstSuccessWins runs members in order until one succeeds (||).
	FirstSuccessWins
	// Pipeline connects each member's stdout to the next member's stdin (|).
	Pipeline
)

func (k Kind) String() string {
	switch k {
	case AllMustSucceed:
		return "&&"
	case FirstSuccessWins:
		return "||"
	case Pipeline:
		return "|"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) name() string {
	switch k {
	case AllMustSucceed:
		return "and"
	case FirstSuccessWins:
		return "or"
	case Pipeline:
		return "pipeline"
	default:
		return "unknown"
	}
}

// Command is one of Empty, Single or Chain.
type Command interface {
	fmt.Stringer
	isCommand()
}

// Empty is a line with nothing to run.
type Empty struct{}

// Single runs one invocation.
type Single struct {
	Invocation
}

// Chain runs several invocations combined by Kind.
type Chain struct {
	Invocations []Invocation
	Kind        Kind
}

func (Empty) isCommand()  {}
func (Single) isCommand() {}
func (Chain) isCommand()  {}

func (Empty) String() string {
	return "empty"
}

func (s Single) String() string {
	return fmt.Sprintf("single(%s)", s.Invocation)
}

func (c Chain) String() string {
	members := make([]string, len(c.Invocations))
	for i, inv := range c.Invocations {
		members[i] = inv.String()
	}
	return fmt.Sprintf("%s(%s)", c.Kind.name(), strings.Join(members, " "+c.Kind.String()+" "))
}

// NewChain validates and builds a Chain.
func NewChain(kind Kind, invocations ...Invocation) (Chain, error) {
	if len(invocations) == 0 {
		return Chain{}, ErrEmptyChain
	}
	for _, inv := range invocations {
		if inv.Background {
			return Chain{}, fmt.Errorf("%s: %w", inv.Program, ErrBackgroundInChain)
		}
	}
	return Chain{Invocations: invocations, Kind: kind}, nil
}

var (
	_ Command = Empty{}
	_ Command = Single{}
	_ Command = Chain{}
)
