package notice

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// LogProvider writes alerts to the log instead of mailing them: failing
// alerts at Error, recoveries at Info.
type LogProvider struct {
	Logger *slog.Logger
}

func NewLogProvider(logger *slog.Logger) *LogProvider {
	return &LogProvider{Logger: logger}
}

func (l *LogProvider) Name() string {
	return "log"
}

func (l *LogProvider) Send(msg Message) (SendResult, error) {
	id := "log-" + uuid.NewString()
	level := slog.LevelError
	if msg.Kind == KindRecovered {
		level = slog.LevelInfo
	}
	l.Logger.Log(context.Background(), level, msg.Subject,
		"alert_source", msg.Source,
		"alert_kind", msg.Kind,
		"recipients", strings.Join(msg.To, ", "),
		"message_id", id,
	)
	return SendResult{ProviderMessageID: id}, nil
}
