package notify

import (
	"github.com/rs/zerolog/log"
)

// LogSink writes tickets to the structured log. Useful headless and as a default.
type LogSink struct{}

var _ Sink = LogSink{}

func (LogSink) Show(t Ticket) {
	ev := log.Info()
	if t.Category != "" && t.Category.IsFailure() {
		ev = log.Warn()
	}
	ev.Str("ticket", t.ID).
		Str("category", string(t.Category)).
		Str("action", string(t.Action)).
		Msg(t.Message)
}

func (LogSink) Dismiss(ids []string) {
	log.Debug().Strs("tickets", ids).Msg("notifications cleared")
}
