package reminders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiChannelSendsToAll(t *testing.T) {
	a, b := &recordingChannel{}, &recordingChannel{}
	multi := NewMultiChannel(a, nil, b)

	require.NoError(t, multi.Send(context.Background(), Message{MemberID: "m1", Text: "hello"}))
	assert.Equal(t, 1, a.Count())
	assert.Equal(t, 1, b.Count())
}

func TestMultiChannelJoinsFailures(t *testing.T) {
	down := errors.New("down")
	ok := &recordingChannel{}
	multi := NewMultiChannel(&recordingChannel{err: down}, ok)

	err := multi.Send(context.Background(), Message{MemberID: "m1", Text: "hello"})
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 1, ok.Count())
}

func TestChannelsFromURLs(t *testing.T) {
	single, err := ChannelsFromURLs(" https://hooks.example/a ")
	require.NoError(t, err)
	assert.IsType(t, &WebhookChannel{}, single)

	many, err := ChannelsFromURLs("https://hooks.example/a,,https://hooks.example/b")
	require.NoError(t, err)
	require.IsType(t, &MultiChannel{}, many)
	assert.Len(t, many.(*MultiChannel).channels, 2)

	_, err = ChannelsFromURLs(" , ")
	assert.Error(t, err)
}
