package frenet

import "log/slog"

// Logger receives one informational record per webhook substitution.
// *slog.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}

// orNop returns a usable logger for l, treating nil (including a nil *slog.Logger) as absent.
func orNop(l Logger) Logger {
	switch v := l.(type) {
	case nil:
		return nopLogger{}
	case *slog.Logger:
		if v == nil {
			return nopLogger{}
		}
	}
	return l
}
