package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublish_DeliversToSubscriber(t *testing.T) {
	b := NewBus(1)
	require.True(t, b.Publish(AnalyticsEvent{QueryID: "q1"}))
	evt := <-b.Subscribe()
	require.Equal(t, "q1", evt.QueryID)
}

func TestPublish_DropsWhenBufferFull(t *testing.T) {
	b := NewBus(1)
	require.True(t, b.Publish(AnalyticsEvent{QueryID: "q1"}))
	require.False(t, b.Publish(AnalyticsEvent{QueryID: "q2"}))
}
