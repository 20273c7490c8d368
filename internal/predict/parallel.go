package predict

import (
	"context"
	"sync"
)

// Parallel runs the same input through every submodule concurrently.
// Outputs are collected in module order. A failure in any submodule
// propagates the first error in that order; the other submodules are
// still awaited for side-effect accounting, but their results are
// discarded.
type Parallel struct {
	modules []*Predict
}

// NewParallel constructs a Parallel over modules, all of which must
// accept the same input shape.
func NewParallel(modules ...*Predict) *Parallel {
	return &Parallel{modules: modules}
}

// Forward runs inputs through every submodule concurrently and returns
// their outputs in submodule order.
func (pl *Parallel) Forward(ctx context.Context, inputs map[string]interface{}) ([]map[string]interface{}, error) {
	results := make([]map[string]interface{}, len(pl.modules))
	errs := make([]error, len(pl.modules))

	var wg sync.WaitGroup
	for i, m := range pl.modules {
		wg.Add(1)
		go func(i int, m *Predict) {
			defer wg.Done()
			out, err := m.Forward(ctx, inputs)
			results[i] = out
			errs[i] = err
		}(i, m)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
