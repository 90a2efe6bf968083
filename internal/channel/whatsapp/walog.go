package whatsapp

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/beaconhq/beacon/internal/log"
)

// waLogger bridges whatsmeow's logger interface onto slog so client
// internals log through the same pipeline as the rest of the process.
type waLogger struct {
	logger log.Logger
}

func newWALogger(logger log.Logger) waLog.Logger {
	if logger == nil {
		logger = log.NewNop()
	}
	return &waLogger{logger: logger.With("component", "whatsmeow")}
}

func (l *waLogger) Errorf(msg string, args ...any) {
	l.logger.Error(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Warnf(msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Infof(msg string, args ...any) {
	l.logger.Info(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Debugf(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{logger: l.logger.With("module", module)}
}
