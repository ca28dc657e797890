// Package delivery pushes formatted documents to external destinations (Notion pages)
// and posts chat notifications (Slack) once those destinations have resolved.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voxnote/backend/internal/metrics"
)

// Document is what gets delivered.
type Document struct {
	RecordingID uuid.UUID
	Title       string
	Content     string
	Format      string
	CreatedAt   time.Time
}

// Destination creates the document somewhere and returns a reference URL.
type Destination interface {
	Name() string
	Deliver(ctx context.Context, doc Document) (string, error)
}

// Notifier announces a delivered document with links to successful destinations.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, doc Document, links []Link) error
}

// Link is a successfully delivered reference.
type Link struct {
	Destination string
	URL         string
}

// Targets is the per-user delivery plan.
type Targets struct {
	Destinations []Destination
	Notifiers    []Notifier
}

// Empty reports whether nothing is configured.
func (t Targets) Empty() bool { return len(t.Destinations) == 0 && len(t.Notifiers) == 0 }

// Result is the outcome for one destination or notifier.
type Result struct {
	Destination  string
	URL          string
	Err          error
	Notification bool
}

// Fanout attempts every target independently.
type Fanout struct {
	logger *zap.Logger
}

// NewFanout creates a fan-out.
func NewFanout(logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{logger: logger}
}

// Deliver runs all destinations concurrently, waits for them, then runs notifiers
// with links to the destinations that succeeded. Results list destinations first,
// in the given order, followed by notifiers.
func (f *Fanout) Deliver(ctx context.Context, doc Document, t Targets) []Result {
	results := make([]Result, len(t.Destinations), len(t.Destinations)+len(t.Notifiers))

	var g errgroup.Group
	for i, d := range t.Destinations {
		i, d := i, d
		g.Go(func() error {
			results[i] = f.deliverOne(ctx, d, doc)
			return nil
		})
	}
	_ = g.Wait()

	var links []Link
	for _, r := range results {
		if r.Err == nil && r.URL != "" {
			links = append(links, Link{Destination: r.Destination, URL: r.URL})
		}
	}
	for _, n := range t.Notifiers {
		results = append(results, f.notifyOne(ctx, n, doc, links))
	}
	return results
}

func (f *Fanout) deliverOne(ctx context.Context, d Destination, doc Document) (res Result) {
	res.Destination = d.Name()
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%s panic: %v", d.Name(), p)
			res.URL = ""
		}
		metrics.IncDelivery(res.Destination, res.Err == nil)
		if res.Err != nil {
			f.logger.Warn("delivery failed", zap.String("destination", res.Destination),
				zap.String("recording_id", doc.RecordingID.String()), zap.Error(res.Err))
		}
	}()
	res.URL, res.Err = d.Deliver(ctx, doc)
	return res
}

func (f *Fanout) notifyOne(ctx context.Context, n Notifier, doc Document, links []Link) (res Result) {
	res.Destination = n.Name()
	res.Notification = true
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%s panic: %v", n.Name(), p)
		}
		metrics.IncDelivery(res.Destination, res.Err == nil)
		if res.Err != nil {
			f.logger.Warn("notification failed", zap.String("destination", res.Destination),
				zap.String("recording_id", doc.RecordingID.String()), zap.Error(res.Err))
		}
	}()
	res.Err = n.Notify(ctx, doc, links)
	return res
}
