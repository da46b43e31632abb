package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component returns the process logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
