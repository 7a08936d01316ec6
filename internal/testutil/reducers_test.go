package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitwebs/bitstream/internal/model"
)

func TestCountingInit(t *testing.T) {
	c := NewCounter()
	init := CountingInit(func() int { return 7 }, c)

	assert.Equal(t, 7, init())
	assert.Equal(t, 7, init())
	assert.Equal(t, int64(2), c.Current())

	zero := CountingInit[string](nil, c)
	assert.Equal(t, "", zero())
	assert.Equal(t, int64(3), c.Current())
}

func TestCountingReduce(t *testing.T) {
	c := NewCounter()
	sum := CountingReduce(func(_ context.Context, s int, e model.Entry) (int, []byte, error) {
		return s + len(e.Payload), e.Payload, nil
	}, c)

	s, out, err := sum(context.Background(), 1, model.Entry{Payload: []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, 4, s)
	assert.Equal(t, []byte("abc"), out)
	assert.Equal(t, int64(1), c.Current())
}
