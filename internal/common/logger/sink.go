package logger

import "go.uber.org/zap"

// EventSink is the structural log interface the themeing/proxy engine is
// injected with (spec §6: debug/info/warn/error(source, message, *args),
// plus an optional describe(text) sink for human-readable rule-trace
// narration). It is deliberately minimal so embedders can supply any
// compatible implementation; Sink below is the zap-backed one this repo
// wires by default.
type EventSink interface {
	Debug(source, message string, args ...any)
	Info(source, message string, args ...any)
	Warn(source, message string, args ...any)
	Error(source, message string, args ...any)
	Describe(text string)
}

// Sink adapts a *DynamicLogger (or any *zap.Logger) to EventSink. Describe
// narration is emitted at debug level under the "trace" source, since it is
// meant for interactive rule debugging, not routine operation.
type Sink struct {
	logger *zap.Logger
}

// NewSink wraps a zap logger as an EventSink.
func NewSink(logger *zap.Logger) *Sink {
	return &Sink{logger: logger}
}

func (s *Sink) Debug(source, message string, args ...any) {
	s.logger.Debug(message, zap.String("source", source), zap.Any("args", args))
}

func (s *Sink) Info(source, message string, args ...any) {
	s.logger.Info(message, zap.String("source", source), zap.Any("args", args))
}

func (s *Sink) Warn(source, message string, args ...any) {
	s.logger.Warn(message, zap.String("source", source), zap.Any("args", args))
}

func (s *Sink) Error(source, message string, args ...any) {
	s.logger.Error(message, zap.String("source", source), zap.Any("args", args))
}

func (s *Sink) Describe(text string) {
	s.logger.Debug(text, zap.String("source", "trace"))
}

var _ EventSink = (*Sink)(nil)
