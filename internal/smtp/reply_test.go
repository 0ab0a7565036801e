package smtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyParser_SingleLine(t *testing.T) {
	p := NewReplyParser()
	complete, err := p.Feed([]byte("220 mail.example.com ESMTP ready\r\n"))
	require.NoError(t, err)
	require.True(t, complete)

	reply, err := p.Reply()
	require.NoError(t, err)
	assert.Equal(t, 220, reply.Code)
	assert.Equal(t, "mail.example.com ESMTP ready", reply.Message)
}

func TestReplyParser_MultiLine(t *testing.T) {
	p := NewReplyParser()
	complete, err := p.Feed([]byte("250-greeting\r\n250 ok\r\n"))
	require.NoError(t, err)
	require.True(t, complete)

	reply, err := p.Reply()
	require.NoError(t, err)
	assert.Equal(t, 250, reply.Code)
	assert.Equal(t, "greeting ok", reply.Message)
}

func TestReplyParser_SplitAcrossChunks(t *testing.T) {
	p := NewReplyParser()

	complete, err := p.Feed([]byte("250-hel"))
	require.NoError(t, err)
	assert.False(t, complete)

	complete, err = p.Feed([]byte("lo\r\n250 o"))
	require.NoError(t, err)
	assert.False(t, complete)

	complete, err = p.Feed([]byte("k\r\n"))
	require.NoError(t, err)
	require.True(t, complete)

	reply, err := p.Reply()
	require.NoError(t, err)
	assert.Equal(t, 250, reply.Code)
	assert.Equal(t, "hello ok", reply.Message)
}

func TestReplyParser_LeftoverBytesKeptForNextReply(t *testing.T) {
	p := NewReplyParser()

	complete, err := p.Feed([]byte("220 ready\r\n250 "))
	require.NoError(t, err)
	require.True(t, complete)
	first, err := p.Reply()
	require.NoError(t, err)
	assert.Equal(t, 220, first.Code)

	// The "250 " fragment fed alongside the first reply should not have
	// been consumed by Reply(); Feed again to complete it.
	complete, err = p.Feed([]byte("ok\r\n"))
	require.NoError(t, err)
	require.True(t, complete)
	second, err := p.Reply()
	require.NoError(t, err)
	assert.Equal(t, 250, second.Code)
	assert.Equal(t, "ok", second.Message)
}

func TestReplyParser_RunawayBufferIsProtocolError(t *testing.T) {
	p := NewReplyParser()
	huge := make([]byte, maxReplyBuffer+1)
	for i := range huge {
		huge[i] = 'x'
	}
	_, err := p.Feed(huge)
	assert.ErrorIs(t, err, ErrReplyTooLarge)
}
