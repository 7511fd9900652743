package export

import (
	"radscan-go-migration/pkg/log"
)

// Notifier delivers status messages about a running scan. Delivery
// (mail, messenger) is an external collaborator; the default sink
// writes to the host log.
type Notifier interface {
	Notify(subject, body string) error
}

// LogNotifier writes notifications to the host log.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates the default notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.GetLogger("notify")}
}

// Notify logs the message.
func (n *LogNotifier) Notify(subject, body string) error {
	n.logger.Info("%s: %s", subject, body)
	return nil
}
