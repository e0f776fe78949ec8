package shapes

import "iter"

// Iter iterates over all possible indices of the given array shape, in row-major order (the last axis
// changes fastest), independent of the layout.
//
// To avoid allocating the slice of indices, the yielded indices is owned by the Iter() method:
// don't change it inside the loop.
func (s Shape) Iter() iter.Seq[[]int] {
	return s.IterRegion(make([]int, s.Rank()), s.Dimensions, nil)
}

// IterRegion iterates over the indices of the sub-region of the array shape starting at base, with count
// elements per axis, stepping incr on each axis (nil incr means 1 on every axis).
// It yields nothing if any count is <= 0.
//
// The yielded slice is owned by the iterator: don't change it inside the loop.
func (s Shape) IterRegion(base, count, incr []int) iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		if !s.IsArray() {
			return
		}
		rank := s.Rank()
		if rank == 0 {
			// Valid scalar: yield one empty index slice.
			_ = yield(make([]int, 0))
			return
		}
		for _, c := range count {
			if c <= 0 {
				return
			}
		}

		current := make([]int, rank)
		copy(current, base)
		offsets := make([]int, rank) // Number of steps taken in each axis.
		for {
			if !yield(current) {
				return
			}

			axis := rank - 1
			for ; axis >= 0; axis-- {
				step := 1
				if incr != nil {
					step = incr[axis]
				}
				offsets[axis]++
				if offsets[axis] < count[axis] {
					current[axis] += step
					break
				}
				// The current axis overflowed; reset it and carry over to the next more major axis.
				offsets[axis] = 0
				current[axis] = base[axis]
			}
			if axis < 0 {
				return
			}
		}
	}
}

// Strides returns the number of elements to skip in the flat storage for a unit step on each axis,
// taking the layout into account (default row-major if not set).
func (s Shape) Strides() []int {
	strides := make([]int, s.Rank())
	stride := 1
	for _, axis := range s.MinorToMajor() {
		strides[axis] = stride
		stride *= s.Dimensions[axis]
	}
	return strides
}

// LinearIndex converts a multi-dimensional index into the position of the element in the flat storage,
// according to the layout of the shape. It doesn't check bounds.
func (s Shape) LinearIndex(indices []int) int {
	var linear, stride int
	stride = 1
	for _, axis := range s.MinorToMajor() {
		linear += indices[axis] * stride
		stride *= s.Dimensions[axis]
	}
	return linear
}

// InBounds returns whether indices is a valid index into the array shape.
func (s Shape) InBounds(indices []int) bool {
	if len(indices) != s.Rank() {
		return false
	}
	for axis, idx := range indices {
		if idx < 0 || idx >= s.Dimensions[axis] {
			return false
		}
	}
	return true
}
