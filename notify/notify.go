// Package notify delivers verification codes and invitation links.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/PaulFidika/verifykit/core"
)

// LogSender writes one line per message. Codes and links are never logged.
type LogSender struct {
	Log *slog.Logger
}

func (l LogSender) Send(ctx context.Context, address string, msg core.Message) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "verifykit: message sent", "to", RedactAddress(address), "kind", msg.Kind, "purpose", msg.Purpose)
	return nil
}

// RedactAddress keeps the first character of the local part and the domain.
func RedactAddress(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at <= 0 {
		return "***"
	}
	return address[:1] + "***" + address[at:]
}

// Multi sends to every notifier and joins their errors.
type Multi []core.Notifier

func (m Multi) Send(ctx context.Context, address string, msg core.Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, address, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
