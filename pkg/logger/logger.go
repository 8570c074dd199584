package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

var root zerolog.Logger

func init() {
	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	root = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Get returns a named component logger.
func Get(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}

// Wa returns a whatsmeow-compatible logger that feeds the same sink,
// tagged with the session it belongs to.
func Wa(sessionID string) waLog.Logger {
	return waLog.Zerolog(root.With().Str("component", "whatsmeow").Str("session_id", sessionID).Logger())
}
