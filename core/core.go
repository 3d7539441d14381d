package core

import "github.com/hupe1980/agentcrew/logging"

// runLogger scopes a logging.Logger to one run: entries written through it
// carry the run id and calling agent, keeping concurrent agent runs
// distinguishable in shared output. It implements logging.Logger itself and
// substitutes a NoOpLogger when constructed with nil.
type runLogger struct {
	logger logging.Logger
	attrs  []any
}

func newRunLogger(logger logging.Logger, attrs ...any) *runLogger {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &runLogger{logger: logger, attrs: attrs}
}

// Logger returns the scoped logger for handing to collaborators.
func (l *runLogger) Logger() logging.Logger { return l }

func (l *runLogger) scope(args []any) []any {
	if len(l.attrs) == 0 {
		return args
	}
	scoped := make([]any, 0, len(args)+len(l.attrs))
	scoped = append(scoped, args...)
	return append(scoped, l.attrs...)
}

// Debug logs a debug message with the run scope attached.
func (l *runLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, l.scope(args)...) }

// Info logs an info message with the run scope attached.
func (l *runLogger) Info(msg string, args ...any) { l.logger.Info(msg, l.scope(args)...) }

// Warn logs a warning message with the run scope attached.
func (l *runLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, l.scope(args)...) }

// Error logs an error message with the run scope attached.
func (l *runLogger) Error(msg string, args ...any) { l.logger.Error(msg, l.scope(args)...) }

// LogDebug mirrors Debug for contexts embedding the runLogger.
func (l *runLogger) LogDebug(msg string, args ...any) { l.Debug(msg, args...) }

// LogInfo mirrors Info for contexts embedding the runLogger.
func (l *runLogger) LogInfo(msg string, args ...any) { l.Info(msg, args...) }

// LogWarn mirrors Warn for contexts embedding the runLogger.
func (l *runLogger) LogWarn(msg string, args ...any) { l.Warn(msg, args...) }

// LogError mirrors Error for contexts embedding the runLogger.
func (l *runLogger) LogError(msg string, args ...any) { l.Error(msg, args...) }
