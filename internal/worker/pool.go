// Package worker fans work out over a bounded number of goroutines and
// returns results in input order. Squad discovery parses manifests with it.
package worker

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome for the item at Index.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Pool runs a function over a batch with at most Limit calls in flight.
type Pool[In, Out any] struct {
	Limit int
}

// NewPool returns a pool with the given limit. Non-positive means
// runtime.NumCPU().
func NewPool[In, Out any](limit int) *Pool[In, Out] {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return &Pool[In, Out]{Limit: limit}
}

// Process applies fn to every item. Failures stay on their own result: an
// error or panic in one item never stops the others. Items not yet started
// when ctx is done get ctx.Err().
func (p *Pool[In, Out]) Process(ctx context.Context, items []In, fn func(context.Context, In) (Out, error)) []Result[Out] {
	if len(items) == 0 {
		return nil
	}

	results := make([]Result[Out], len(items))
	g := new(errgroup.Group)
	g.SetLimit(min(p.Limit, len(items)))

	for i, item := range items {
		results[i].Index = i
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Value, results[i].Err = call(ctx, item, fn)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func call[In, Out any](ctx context.Context, item In, fn func(context.Context, In) (Out, error)) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return fn(ctx, item)
}
