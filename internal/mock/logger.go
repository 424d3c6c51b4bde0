package mock

import "auto_trader/internal/core"

// NopLogger discards everything. Tests use it to keep output quiet.
type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...interface{})                   {}
func (NopLogger) Info(msg string, fields ...interface{})                    {}
func (NopLogger) Warn(msg string, fields ...interface{})                    {}
func (NopLogger) Error(msg string, fields ...interface{})                   {}
func (NopLogger) Fatal(msg string, fields ...interface{})                   {}
func (n NopLogger) WithField(key string, value interface{}) core.ILogger    { return n }
func (n NopLogger) WithFields(fields map[string]interface{}) core.ILogger   { return n }

var _ core.ILogger = NopLogger{}
