package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerSend(t *testing.T) {
	fw := &fakeWriter{}
	p := NewProducerWith(fw)

	require.NoError(t, p.Send(context.Background(), []byte("k"), []byte("v")))
	require.NoError(t, p.SendBatch(context.Background(), nil))
	require.Equal(t, 1, fw.count())
	assert.Equal(t, []byte("k"), fw.msgs[0].Key)

	down := errors.New("down")
	fw.err = down
	require.ErrorIs(t, p.Send(context.Background(), nil, []byte("v")), down)
	require.NoError(t, p.Close())
}
