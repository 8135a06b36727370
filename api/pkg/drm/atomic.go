package drm

import "sort"

// AtomicRequest accumulates property writes for one atomic commit.
// Writes to the same object and property replace each other.
type AtomicRequest struct {
	props map[uint32]map[uint32]uint64
}

// NewAtomicRequest returns an empty request.
func NewAtomicRequest() *AtomicRequest {
	return &AtomicRequest{props: make(map[uint32]map[uint32]uint64)}
}

// Add sets property propID of object objectID to value.
func (r *AtomicRequest) Add(objectID, propID uint32, value uint64) {
	if r.props == nil {
		r.props = make(map[uint32]map[uint32]uint64)
	}
	obj, ok := r.props[objectID]
	if !ok {
		obj = make(map[uint32]uint64)
		r.props[objectID] = obj
	}
	obj[propID] = value
}

// Len returns the number of property writes.
func (r *AtomicRequest) Len() int {
	n := 0
	for _, obj := range r.props {
		n += len(obj)
	}
	return n
}

// pack flattens the request into the four arrays of struct
// drm_mode_atomic. Objects and properties are sorted by id.
func (r *AtomicRequest) pack() (objs, counts, props []uint32, values []uint64) {
	for id := range r.props {
		objs = append(objs, id)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i] < objs[j] })

	for _, id := range objs {
		obj := r.props[id]
		ids := make([]uint32, 0, len(obj))
		for prop := range obj {
			ids = append(ids, prop)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		counts = append(counts, uint32(len(ids)))
		for _, prop := range ids {
			props = append(props, prop)
			values = append(values, obj[prop])
		}
	}
	return objs, counts, props, values
}

// Each calls fn for every property write, in the order they are packed.
func (r *AtomicRequest) Each(fn func(objectID, propID uint32, value uint64)) {
	objs, counts, props, values := r.pack()
	i := 0
	for n, obj := range objs {
		for end := i + int(counts[n]); i < end; i++ {
			fn(obj, props[i], values[i])
		}
	}
}
