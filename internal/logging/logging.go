// Package logging configures the process-wide apex logger.
package logging

import (
	"io"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// Setup installs a JSON or text handler writing to stdout at the given level.
// Unknown levels fall back to info.
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	switch format {
	case "text":
		log.SetHandler(text.New(w))
	default:
		log.SetHandler(json.New(w))
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
