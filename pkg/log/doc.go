// Package log provides structured logging for Orbiter components.
//
// Components receive a Logger by injection and tag their output with a
// component field:
//
//	logger := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	logger = logger.With(log.F("component", "bridge"))
//	logger.Info("enqueued records", log.Int("count", n))
//
// There is no package-level default logger; construct one at process start
// and pass it down.
package log
