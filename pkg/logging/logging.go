package logging

import (
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/mattn/go-isatty"
)

// New returns a key/value logger writing to w at the given level.
// Colour is enabled only when w is a terminal.
func New(w io.Writer, level string) (log.Logger, error) {
	lvl, err := log.LvlFromString(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, core.ErrInvalidConfigf("invalid log level %q", level)
	}
	return log.NewLogger(log.NewTerminalHandlerWithLevel(w, lvl, useColor(w))), nil
}

// Discard returns a logger that drops everything
func Discard() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
