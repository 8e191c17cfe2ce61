package assistant

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxQueuesSpokenAndSilent(t *testing.T) {
	in := NewInbox()
	ctx := context.Background()

	require.NoError(t, in.InjectSystemMessage(ctx, "say this"))
	require.NoError(t, in.AddSystemMemo(ctx, "know this"))

	msg := <-in.Messages()
	assert.Equal(t, "say this", msg.Text)
	assert.False(t, msg.Silent)

	msg = <-in.Messages()
	assert.Equal(t, "know this", msg.Text)
	assert.True(t, msg.Silent)
}

func TestInboxDropsOldestWhenFull(t *testing.T) {
	in := NewInbox()
	ctx := context.Background()

	for i := 0; i < inboxBuffer+5; i++ {
		require.NoError(t, in.InjectSystemMessage(ctx, fmt.Sprintf("msg-%d", i)))
	}

	// The oldest entries were dropped; the first survivor is msg-5.
	msg := <-in.Messages()
	assert.Equal(t, "msg-5", msg.Text)
}

func TestInboxCloseIsIdempotentAndDropsLatePushes(t *testing.T) {
	in := NewInbox()
	in.Close()
	in.Close()

	// Pushing after close must not panic on the closed channel.
	require.NoError(t, in.InjectSystemMessage(context.Background(), "late"))

	_, ok := <-in.Messages()
	assert.False(t, ok)
}
