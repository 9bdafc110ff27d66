package logging

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	// Per-logger levels do the filtering.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	l := New(DefaultConfig(ProfileRuntime))
	current.Store(&l)
}

// Logger returns the process logger.
func Logger() zerolog.Logger {
	return *current.Load()
}

// Use installs l as the process logger.
func Use(l zerolog.Logger) {
	current.Store(&l)
}

func Tracef(format string, args ...any) { current.Load().Trace().Msgf(format, args...) }
func Debugf(format string, args ...any) { current.Load().Debug().Msgf(format, args...) }
func Infof(format string, args ...any)  { current.Load().Info().Msgf(format, args...) }
func Warnf(format string, args ...any)  { current.Load().Warn().Msgf(format, args...) }
func Errf(format string, args ...any)   { current.Load().Error().Msgf(format, args...) }

// Logf narrates test and tool progress without a level.
func Logf(format string, args ...any) {
	current.Load().WithLevel(zerolog.NoLevel).Msgf(format, args...)
}

// Sink adapts a zerolog logger to the single-method diagnostic sink consumed
// by payload decoders.
type Sink struct {
	L zerolog.Logger
}

func NewSink(l zerolog.Logger) Sink {
	return Sink{L: l}
}

func (s Sink) Log(level zerolog.Level, format string, args ...any) {
	s.L.WithLevel(level).Msgf(format, args...)
}
