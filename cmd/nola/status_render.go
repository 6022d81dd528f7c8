package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// statusKind pairs the bracketed label of a health line with its colour.
type statusKind struct {
	label string
	color string
}

var (
	statusInfo  = statusKind{label: "INFO", color: ansiBlue}
	statusOK    = statusKind{label: "OK", color: ansiGreen}
	statusWarn  = statusKind{label: "WARN", color: ansiYellow}
	statusError = statusKind{label: "ERROR", color: ansiRed}
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

// line renders one "  Label:  [KIND] message" health row.
func (k statusKind) line(label, message string, colorize bool) string {
	text := "[" + k.label + "]"
	if message != "" {
		text += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", text)
	if colorize && k.color != "" {
		return k.color + base + ansiReset
	}
	return base
}

// checkKind maps a pass/fail check onto OK or ERROR.
func checkKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}

// countKind reports OK for an empty bucket and escalates to elevated when
// the bucket holds tasks.
func countKind(n int, elevated statusKind) statusKind {
	if n > 0 {
		return elevated
	}
	return statusOK
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
