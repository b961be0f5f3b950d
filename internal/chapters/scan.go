package chapters

import (
	"runtime"
	"sync"
)

// ScanFunc processes one chapter. Implementations must be safe to call
// from multiple goroutines; per-chapter results are expected to be
// merged by the caller after Scan returns.
type ScanFunc func(ch Chapter) error

// Scan runs fn over every chapter on a bounded worker pool and returns
// whatever per-chapter errors occurred. Order of errors is not
// meaningful; callers that need determinism merge per-chapter partial
// results keyed by chapter, not by completion order.
func Scan(chs []Chapter, workers int, fn ScanFunc) []error {
	if len(chs) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(chs) {
		workers = len(chs)
	}

	jobs := make(chan Chapter)
	errs := make(chan error, len(chs))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ch := range jobs {
				if err := fn(ch); err != nil {
					errs <- err
				}
			}
		}()
	}

	for _, ch := range chs {
		jobs <- ch
	}
	close(jobs)
	wg.Wait()
	close(errs)

	var out []error
	for err := range errs {
		out = append(out, err)
	}
	return out
}
