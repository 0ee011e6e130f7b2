package article

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainEvents(ch <-chan ProgressEvent) []ProgressEvent {
	var out []ProgressEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countEvents(events []ProgressEvent, kind string) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestBroadcasterPushWithoutSubscriberIsNoop(t *testing.T) {
	b := NewBroadcaster()

	assert.NotPanics(t, func() {
		b.Push("missing", ProgressEvent{Kind: EventStatus})
	})
}

func TestBroadcasterDeliversToSubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Attach("s1")

	b.Push("s1", ProgressEvent{Kind: EventSection, Data: map[string]any{"section_number": 1}})
	b.Push("s1", ProgressEvent{Kind: EventCompleted})
	b.Detach("s1")

	events := drainEvents(ch)
	require.Len(t, events, 2)
	assert.Equal(t, EventSection, events[0].Kind)
	assert.Equal(t, EventCompleted, events[1].Kind)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestBroadcasterAttachReplacesPriorChannel(t *testing.T) {
	b := NewBroadcaster()
	old := b.Attach("s1")
	fresh := b.Attach("s1")

	b.Push("s1", ProgressEvent{Kind: EventStatus})

	_, ok := <-old
	assert.False(t, ok, "replaced channel should be closed")

	events := drainEvents(fresh)
	require.Len(t, events, 1)
	assert.Equal(t, EventStatus, events[0].Kind)
}

func TestBroadcasterEvictsUnconsumedChannel(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Attach("s1")

	// 订阅方不消费，填满缓冲后再推送应当驱逐通道而不是阻塞
	for i := 0; i < 70; i++ {
		b.Push("s1", ProgressEvent{Kind: EventText})
	}

	events := drainEvents(ch)
	assert.NotEmpty(t, events)
	assert.Less(t, len(events), 70)

	// 驱逐后推送退化为 no-op
	assert.NotPanics(t, func() {
		b.Push("s1", ProgressEvent{Kind: EventText})
	})
}

func TestBroadcasterReleaseOnlyDropsOwnChannel(t *testing.T) {
	b := NewBroadcaster()
	old := b.Attach("s1")
	fresh := b.Attach("s1")

	// 旧订阅者断开时不应影响替换它的新订阅者
	b.Release("s1", old)
	b.Push("s1", ProgressEvent{Kind: EventStatus})

	events := drainEvents(fresh)
	require.Len(t, events, 1)

	b.Release("s1", fresh)
	_, ok := <-fresh
	assert.False(t, ok, "released channel should be closed")
}

func TestBroadcasterDetachIsIdempotentForUnknownSession(t *testing.T) {
	b := NewBroadcaster()
	assert.NotPanics(t, func() {
		b.Detach("never-attached")
	})
}
