package par

import (
	"sync/atomic"
	"testing"
)

func TestForRange_CoversAllIndices(t *testing.T) {
	for _, workers := range []int{1, 2, 4, 7} {
		n := 1000
		hits := make([]int32, n)
		ForRange(workers, n, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("workers=%d: index %d visited %d times", workers, i, h)
			}
		}
	}
}

func TestForEach_AllIndicesOnce(t *testing.T) {
	n := 57
	var count int64
	hits := make([]int32, n)
	ForEach(4, n, func(i int) {
		atomic.AddInt32(&hits[i], 1)
		atomic.AddInt64(&count, 1)
	})
	if count != int64(n) {
		t.Fatalf("ran %d times, want %d", count, n)
	}
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
}

func TestForEach_ZeroN(t *testing.T) {
	called := false
	ForEach(4, 0, func(int) { called = true })
	if called {
		t.Error("fn called for n = 0")
	}
}
