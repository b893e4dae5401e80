package util

import (
	"os"

	"github.com/mattn/go-isatty"

	"github.com/thushan/llamatap/internal/env"
)

// see https://no-color.org/

func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// ShouldUseColors honours NO_COLOR, then FORCE_COLOR, then LLAMATAP_FORCE_COLORS before sniffing the tty
func ShouldUseColors() bool {
	if noColor := os.Getenv("NO_COLOR"); noColor != "" {
		return false
	}

	if forceColor := os.Getenv("FORCE_COLOR"); forceColor != "" {
		return forceColor != "0"
	}

	return env.GetEnvBoolOrDefault("LLAMATAP_FORCE_COLORS", IsTerminal())
}
