// Package par provides a chunked parallel-for over index ranges, used for
// intra-group vector work and for fanning out independent solver slots.
package par

import (
	"runtime"
	"sync"
)

// ForRange splits [0, n) into contiguous chunks and runs fn(start, end)
// on up to workers goroutines. With workers <= 1 or small n it runs
// serially; results land in caller-owned slices indexed by position, so
// no synchronization beyond the final wait is needed.
func ForRange(workers, n int, fn func(start, end int)) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers == 1 || n < 2*workers {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ForEach runs fn(i) for every i in [0, n) on a bounded pool of workers,
// preserving nothing about execution order. Each index is independent.
func ForEach(workers, n int, fn func(i int)) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	next := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)
	wg.Wait()
}
