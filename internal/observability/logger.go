package observability

import (
	logs "github.com/danmuck/onionoffers/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the process logger with app and installs it as both the
// process logger and the zerolog global logger.
func InitLogger(app string) zerolog.Logger {
	logger := logs.Logger().With().Str("app", app).Logger()
	logs.Use(logger)
	log.Logger = logger
	return logger
}
