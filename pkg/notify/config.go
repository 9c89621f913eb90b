package notify

import (
	"github.com/levenlabs/go-lflag"
)

// Configured returns a notifier that always logs and additionally posts to
// -notify-webhook-url when set.
func Configured() Notifier {
	webhookURL := lflag.String("notify-webhook-url", "", "URL notifications are POSTed to as JSON (optional)")

	n := &Multi{LogNotifier{}}

	lflag.Do(func() {
		if *webhookURL != "" {
			*n = append(*n, NewWebhook(*webhookURL))
		}
	})

	return n
}
