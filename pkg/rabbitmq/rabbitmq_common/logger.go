package rabbitmq_common

// Logger - минимальный логгер pkg-уровня в стиле key/value.
// Сервисы подключают свой LoggerPort через мост.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(err error, msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (l *noopLogger) Debug(string, ...interface{})        {}
func (l *noopLogger) Info(string, ...interface{})         {}
func (l *noopLogger) Warn(string, ...interface{})         {}
func (l *noopLogger) Error(error, string, ...interface{}) {}

// NewNoopLogger возвращает логгер, который ничего не делает
func NewNoopLogger() Logger {
	return &noopLogger{}
}
