// Package logging provides structured logging for the housekeeper.
//
// It wraps the standard library's log/slog with configuration-driven
// format and level selection plus default service fields. Components
// derive their own loggers with With:
//
//	log := logging.New(cfg.Logging, version)
//	apiLog := log.With("component", "api")
//
// Before configuration is loaded, Default() provides a JSON stdout
// logger at info level.
package logging
