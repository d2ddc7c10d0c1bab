// Package log provides the logging facility shared by the agentmem packages.
//
// Memory strategies report their internal events (evictions, page-outs,
// promotions, compression cycles) through the package-level logger so the
// host application can observe strategy behavior without digging through
// operation logs.
//
// # Basic Usage
//
//	import "github.com/smallnest/agentmem/log"
//
//	log.SetLogLevel(log.LogLevelDebug)
//	log.Debug("eviction count: %d", n)
//
// # Using golog
//
// A kataras/golog backend can replace the default stderr logger:
//
//	glogger := golog.New()
//	glogger.SetLevel("debug")
//	log.SetDefaultLogger(log.NewGologLogger(glogger))
//
// # Custom Loggers
//
// Any type implementing the Logger interface can be installed with
// SetDefaultLogger; NoOpLogger silences all output.
package log
