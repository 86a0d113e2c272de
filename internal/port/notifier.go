package port

import "github.com/arturoeanton/go-star-search/internal/domain"

// Notifier receives indexing progress. Calls are synchronous; implementations
// must not block.
type Notifier interface {
	Started(page int)
	Progress(ev domain.ProgressEvent)
	Finished(res domain.RunResult)
	Failed(page int, err error)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) Started(int)                   {}
func (NopNotifier) Progress(domain.ProgressEvent) {}
func (NopNotifier) Finished(domain.RunResult)     {}
func (NopNotifier) Failed(int, error)             {}
