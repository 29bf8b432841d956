package observability

import (
	"github.com/danmuck/devctl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the runtime logging profile and returns a logger
// tagged with the component name.
func InitLogger(component string) zerolog.Logger {
	logging.ConfigureRuntime()
	return log.Logger.With().Str("component", component).Logger()
}
