package output

import (
	"fmt"
	"io"
)

const (
	ansiGreen  = "\033[32m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiReset  = "\033[0m"
)

// Printer writes human-facing messages in a fixed format, optionally
// colorized. Structured results go through Print* above; Printer is
// for the status lines around them.
type Printer struct {
	out    io.Writer
	format Format
	color  bool
}

func NewPrinter(out io.Writer, format Format, color bool) *Printer {
	return &Printer{out: out, format: format, color: color}
}

func (p *Printer) Format() Format     { return p.format }
func (p *Printer) ColorEnabled() bool { return p.color }

func (p *Printer) Println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Success prints msg in green when color is on.
func (p *Printer) Success(msg string) { p.line(ansiGreen, msg) }

// Error prints msg in red when color is on.
func (p *Printer) Error(msg string) { p.line(ansiRed, msg) }

// Warning prints msg in yellow when color is on.
func (p *Printer) Warning(msg string) { p.line(ansiYellow, msg) }

func (p *Printer) line(color, msg string) {
	if p.color {
		_, _ = fmt.Fprintf(p.out, "%s%s%s\n", color, msg, ansiReset)
		return
	}
	_, _ = fmt.Fprintln(p.out, msg)
}
