package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	received [][]byte
}

func (c *fakeClient) Send(message []byte) bool {
	c.received = append(c.received, message)
	return true
}

func (c *fakeClient) Close() {}

func TestHub_BroadcastByTag(t *testing.T) {
	h := NewHub()
	a := &fakeClient{}
	b := &fakeClient{}
	h.Register("orders", a)
	h.Register("drafts", b)

	h.Broadcast("orders", []byte("flushed"))

	require.Len(t, a.received, 1)
	require.Empty(t, b.received, "other tags do not receive the event")
}

func TestHub_Unregister(t *testing.T) {
	h := NewHub()
	a := &fakeClient{}
	h.Register("orders", a)
	h.Unregister("orders", a)

	h.Broadcast("orders", []byte("flushed"))
	require.Empty(t, a.received)
}
