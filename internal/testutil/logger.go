package testutil

import (
	"log/slog"

	"github.com/innofolio/innofolio/internal/log"
)

// NewLogger returns a logger that discards everything, keeping test output
// quiet.
func NewLogger() *slog.Logger {
	return log.NewNop()
}
