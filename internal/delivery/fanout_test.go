package delivery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDestination struct {
	name string
	url  string
	err  error
	done atomic.Bool
	boom bool
}

func (d *fakeDestination) Name() string { return d.name }

func (d *fakeDestination) Deliver(_ context.Context, _ Document) (string, error) {
	defer d.done.Store(true)
	if d.boom {
		panic("destination exploded")
	}
	return d.url, d.err
}

type fakeNotifier struct {
	err       error
	links     []Link
	sawDone   bool
	waitFor   []*fakeDestination
	callCount int
}

func (n *fakeNotifier) Name() string { return "slack" }

func (n *fakeNotifier) Notify(_ context.Context, _ Document, links []Link) error {
	n.callCount++
	n.links = links
	n.sawDone = true
	for _, d := range n.waitFor {
		if !d.done.Load() {
			n.sawDone = false
		}
	}
	return n.err
}

func TestDeliverIsolatesFailures(t *testing.T) {
	ok := &fakeDestination{name: "notion", url: "https://notion.so/page"}
	bad := &fakeDestination{name: "docs", err: errors.New("403")}
	n := &fakeNotifier{waitFor: []*fakeDestination{ok, bad}}

	results := NewFanout(nil).Deliver(context.Background(), Document{Title: "T"}, Targets{
		Destinations: []Destination{ok, bad},
		Notifiers:    []Notifier{n},
	})

	require.Len(t, results, 3)
	require.Equal(t, "notion", results[0].Destination)
	require.NoError(t, results[0].Err)
	require.Equal(t, "https://notion.so/page", results[0].URL)
	require.Equal(t, "docs", results[1].Destination)
	require.Error(t, results[1].Err)
	require.True(t, results[2].Notification)
	require.NoError(t, results[2].Err)

	require.True(t, n.sawDone, "notifier must run after destinations resolve")
	require.Equal(t, []Link{{Destination: "notion", URL: "https://notion.so/page"}}, n.links)
}

func TestDeliverRecoversDestinationPanic(t *testing.T) {
	boom := &fakeDestination{name: "notion", boom: true}
	n := &fakeNotifier{}

	results := NewFanout(nil).Deliver(context.Background(), Document{}, Targets{
		Destinations: []Destination{boom},
		Notifiers:    []Notifier{n},
	})
	require.Len(t, results, 2)
	require.ErrorContains(t, results[0].Err, "panic")
	require.Equal(t, 1, n.callCount)
	require.Empty(t, n.links)
}

func TestDeliverNotifierFailureIsReported(t *testing.T) {
	n := &fakeNotifier{err: errors.New("channel_not_found")}
	results := NewFanout(nil).Deliver(context.Background(), Document{}, Targets{Notifiers: []Notifier{n}})
	require.Len(t, results, 1)
	require.True(t, results[0].Notification)
	require.Error(t, results[0].Err)
}

func TestDeliverWithNoTargets(t *testing.T) {
	require.True(t, Targets{}.Empty())
	require.Empty(t, NewFanout(nil).Deliver(context.Background(), Document{}, Targets{}))
}
