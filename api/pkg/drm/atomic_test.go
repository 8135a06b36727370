package drm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicRequestPack(t *testing.T) {
	var req AtomicRequest
	req.Add(31, 20, 5)
	req.Add(31, 17, 99)
	req.Add(12, 3, 1)
	req.Add(31, 17, 100) // replaces the previous write

	objs, counts, props, values := req.pack()

	assert.Equal(t, []uint32{12, 31}, objs)
	assert.Equal(t, []uint32{1, 2}, counts)
	assert.Equal(t, []uint32{3, 17, 20}, props)
	assert.Equal(t, []uint64{1, 100, 5}, values)
	assert.Equal(t, 3, req.Len())
}

func TestAtomicRequestEmpty(t *testing.T) {
	req := NewAtomicRequest()
	objs, counts, props, values := req.pack()

	assert.Empty(t, objs)
	assert.Empty(t, counts)
	assert.Empty(t, props)
	assert.Empty(t, values)
	assert.Zero(t, req.Len())
}

func TestAtomicRequestEach(t *testing.T) {
	req := NewAtomicRequest()
	req.Add(7, 2, 20)
	req.Add(3, 9, 90)
	req.Add(7, 1, 10)

	var got [][3]uint64
	req.Each(func(obj, prop uint32, value uint64) {
		got = append(got, [3]uint64{uint64(obj), uint64(prop), value})
	})
	assert.Equal(t, [][3]uint64{{3, 9, 90}, {7, 1, 10}, {7, 2, 20}}, got)
}
