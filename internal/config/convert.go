package config

import (
	logs "github.com/danmuck/onionoffers/internal/logging"
	"github.com/danmuck/onionoffers/internal/onionmsg"
)

// Logging converts the [log] section, applying env overrides last.
func (c Config) Logging() logs.Config {
	level, _ := logs.ParseLevel(c.Log.Level)
	out := logs.Config{
		Level:     level,
		Timestamp: c.Log.Timestamp,
		NoColor:   c.Log.NoColor,
		Bypass:    c.Log.Bypass,
	}
	logs.ApplyEnvOverrides(&out)
	return out
}

func (c Config) NewCodec(logger onionmsg.Logger) onionmsg.Codec {
	return onionmsg.Codec{Logger: logger, MaxPayloadBytes: c.Codec.MaxPayloadBytes}
}

func (c Config) NewDispatcher(codec onionmsg.Codec, handler onionmsg.OffersMessageHandler, observer onionmsg.Observer) *onionmsg.Dispatcher {
	return &onionmsg.Dispatcher{
		Codec:    codec,
		Handler:  handler,
		Workers:  c.Dispatch.Workers,
		Observer: observer,
	}
}
