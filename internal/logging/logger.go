package logging

import (
	"log"
	"os"
)

// New returns the process logger for one component, e.g. "validate" or "serve".
func New(component string) *log.Logger {
	prefix := "atlasdecode "
	if component != "" {
		prefix = "atlasdecode-" + component + " "
	}
	return log.New(os.Stdout, prefix, log.LstdFlags|log.LUTC)
}
