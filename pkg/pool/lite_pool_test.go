package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scratch struct {
	data []byte
}

func (s *scratch) Reset() { s.data = s.data[:0] }

func TestNewLitePool_RejectsBadConstructors(t *testing.T) {
	_, err := NewLitePool[*scratch](nil)
	assert.ErrorIs(t, err, errNilConstructor)

	_, err = NewLitePool(func() *scratch { return nil })
	assert.ErrorIs(t, err, errNilValue)
}

func TestPool_ResetsOnPut(t *testing.T) {
	p, err := NewLitePool(func() *scratch { return &scratch{data: make([]byte, 0, 16)} })
	require.NoError(t, err)

	s := p.Get()
	s.data = append(s.data, "leftover"...)
	p.Put(s)
	assert.Empty(t, s.data)

	next := p.Get()
	assert.Empty(t, next.data)
	assert.Equal(t, 16, cap(next.data))
}

func TestPool_ByteSlicePointers(t *testing.T) {
	p, err := NewLitePool(func() *[]byte {
		b := make([]byte, 8192)
		return &b
	})
	require.NoError(t, err)

	buf := p.Get()
	assert.Len(t, *buf, 8192)
	p.Put(buf)
}
