package notifier

import (
	"context"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() port.LoggerPort {
	return contextkeys.LoggerFromContext(context.Background())
}

func receive(t *testing.T, ch ClientChannel) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no SSE message received")
		return ""
	}
}

func TestSSENotifier_BroadcastsImportEvents(t *testing.T) {
	n := NewSSENotifier(testLogger())
	defer n.Close()

	first := n.AddClient()
	second := n.AddClient()

	id := uuid.New()
	n.Publish(context.Background(), domain.ImportEvent{ImportID: id, State: domain.ImportStateImporting, Processed: 25, Total: 51})

	for _, ch := range []ClientChannel{first, second} {
		msg := receive(t, ch)
		require.True(t, strings.HasPrefix(msg, "event: import.importing\ndata: "))
		assert.Contains(t, msg, `"processed":25`)
		assert.Contains(t, msg, id.String())
		assert.True(t, strings.HasSuffix(msg, "\n\n"))
	}
}

func TestSSENotifier_CacheChange(t *testing.T) {
	n := NewSSENotifier(testLogger())
	defer n.Close()

	ch := n.AddClient()
	n.NotifyCacheChange(domain.CacheChange{Reason: domain.CacheChangeMerge, Keys: []string{"X1"}, Size: 1})

	msg := receive(t, ch)
	assert.True(t, strings.HasPrefix(msg, "event: "+EventTypeCacheChanged))
	assert.Contains(t, msg, `"keys":["X1"]`)
}

func TestSSENotifier_RemovedClientGetsNothing(t *testing.T) {
	n := NewSSENotifier(testLogger())
	defer n.Close()

	gone := n.AddClient()
	n.RemoveClient(gone)
	stay := n.AddClient()

	n.Publish(context.Background(), domain.ImportEvent{State: domain.ImportStateDone})
	receive(t, stay)

	select {
	case <-gone:
		t.Fatal("removed client received an event")
	default:
	}
}
