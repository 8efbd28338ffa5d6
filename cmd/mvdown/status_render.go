package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusOK statusKind = iota
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct {
	label string
	color string
}{
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const (
	ansiReset = "\x1b[0m"
	ansiBlue  = "\x1b[34m"
)

// statusPrinter writes aligned check lines and section headers, colored when
// the destination is a terminal.
type statusPrinter struct {
	out   io.Writer
	color bool
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out, color: shouldColorize(out)}
}

func (p *statusPrinter) header(title string) {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if p.color {
		line, rule = ansiBlue+line+ansiReset, ansiBlue+rule+ansiReset
	}
	fmt.Fprintln(p.out, line)
	fmt.Fprintln(p.out, rule)
}

func (p *statusPrinter) line(label string, kind statusKind, message string) {
	fmt.Fprintln(p.out, renderStatusLine(label, kind, message, p.color))
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusStyles[kind]
	text := fmt.Sprintf("  %-20s [%s]", label+":", style.label)
	if message != "" {
		text += " " + message
	}
	if colorize {
		return style.color + text + ansiReset
	}
	return text
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
