package service

import (
	"log/slog"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
)

// LogNotifier writes indexing progress to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n LogNotifier) Started(page int) {
	n.logger().Info("indexing page", "page", page)
}

func (n LogNotifier) Progress(ev domain.ProgressEvent) {
	n.logger().Debug("index progress",
		"phase", ev.Phase, "current", ev.Current, "total", ev.Total, "label", ev.Label)
}

func (n LogNotifier) Finished(res domain.RunResult) {
	n.logger().Info("page indexed",
		"page", res.Page, "indexed", res.Indexed, "total", res.Total, "next_page", res.NextPage)
}

func (n LogNotifier) Failed(page int, err error) {
	n.logger().Error("page failed", "page", page, "error", err)
}

// MultiNotifier fans every notification out to each listener in order.
// A panicking listener does not stop delivery to the rest.
type MultiNotifier []port.Notifier

func (m MultiNotifier) Started(page int) {
	m.each(func(n port.Notifier) { n.Started(page) })
}

func (m MultiNotifier) Progress(ev domain.ProgressEvent) {
	m.each(func(n port.Notifier) { n.Progress(ev) })
}

func (m MultiNotifier) Finished(res domain.RunResult) {
	m.each(func(n port.Notifier) { n.Finished(res) })
}

func (m MultiNotifier) Failed(page int, err error) {
	m.each(func(n port.Notifier) { n.Failed(page, err) })
}

func (m MultiNotifier) each(fn func(port.Notifier)) {
	for _, n := range m {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("progress listener panicked", "panic", r)
				}
			}()
			fn(n)
		}()
	}
}

var (
	_ port.Notifier = LogNotifier{}
	_ port.Notifier = MultiNotifier(nil)
)
