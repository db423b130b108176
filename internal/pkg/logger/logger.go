package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New 建立 process logger，module 會帶在每條log上
func New(module string) zerolog.Logger {
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("module", module).
		Logger()
}
