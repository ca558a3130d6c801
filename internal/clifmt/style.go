package clifmt

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

var (
	colorOnce sync.Once
	colorOn   bool
)

// SetColor forces styling on or off.
func SetColor(on bool) {
	colorOnce.Do(func() {})
	colorOn = on
}

func colorEnabled() bool {
	colorOnce.Do(func() {
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return
		}
		colorOn = term.IsTerminal(int(os.Stdout.Fd()))
	})
	return colorOn
}

func style(code, s string) string {
	if !colorEnabled() || s == "" {
		return s
	}
	return code + s + ansiReset
}

func Headerf(format string, args ...any) string {
	return style(ansiBold+ansiCyan, fmt.Sprintf(format, args...))
}

func Key(s string) string     { return style(ansiBold, s) }
func Dim(s string) string     { return style(ansiDim, s) }
func Success(s string) string { return style(ansiGreen, s) }
func Warn(s string) string    { return style(ansiYellow, s) }
