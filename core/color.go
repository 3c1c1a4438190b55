package core

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/josephlewis42/bshell/core/config"
	"golang.org/x/term"
)

var (
	ColorBoldBlue  = []color.Attribute{color.FgBlue, color.Bold}
	ColorBoldGreen = []color.Attribute{color.FgGreen, color.Bold}
	ColorBoldRed   = []color.Attribute{color.FgRed, color.Bold}
)

// ColorPrinter colors output depending on the configured color mode.
type ColorPrinter struct {
	enabled bool
}

// NewColorPrinter resolves mode (always, auto or never) against out.
func NewColorPrinter(mode string, out *os.File) *ColorPrinter {
	switch mode {
	case config.ColorAlways:
		return &ColorPrinter{enabled: true}
	case config.ColorNever:
		return &ColorPrinter{enabled: false}
	default:
		return &ColorPrinter{enabled: term.IsTerminal(int(out.Fd()))}
	}
}

func (c *ColorPrinter) ShouldColor() bool {
	return c != nil && c.enabled
}

func (c *ColorPrinter) Sprintf(attrs []color.Attribute, format string, a ...interface{}) string {
	if !c.ShouldColor() {
		return fmt.Sprintf(format, a...)
	}

	// The package level NoColor is decided from stdout, the printer's own
	// decision wins.
	clr := color.New(attrs...)
	clr.EnableColor()
	return clr.Sprintf(format, a...)
}
