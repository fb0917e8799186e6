package miner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Iron-Ham/poolminer/internal/errors"
	"github.com/Iron-Ham/poolminer/internal/pool"
)

// checkEvery is how many nonces are evaluated between context checks.
const checkEvery = 4096

// Result describes one search pass.
type Result struct {
	Found     bool
	Nonce     uint64
	Evaluated uint64
	Elapsed   time.Duration
}

// Searcher enumerates nonces for jobs. Candidates are built in a scratch
// buffer sized at construction, so a pass performs no per-nonce
// allocation. A Searcher is owned by a single goroutine.
type Searcher struct {
	eval    Evaluator
	scratch []byte
}

// NewSearcher creates a Searcher whose scratch buffer holds a seed of up to
// maxSeedLength bytes followed by any nonce below maxLimit.
func NewSearcher(eval Evaluator, maxSeedLength int, maxLimit uint64) *Searcher {
	return &Searcher{
		eval:    eval,
		scratch: make([]byte, 0, maxSeedLength+DecimalWidth(maxLimit)),
	}
}

// Capacity returns the scratch buffer size in bytes.
func (s *Searcher) Capacity() int {
	return cap(s.scratch)
}

// Search evaluates seed+decimal(nonce) for nonce = 0, 1, ... up to
// job.Limit()-1 and stops at the first candidate that meets job.Target.
// The context is checked every few thousand nonces; on cancellation the
// partial Result is returned with the context's error.
func (s *Searcher) Search(ctx context.Context, job pool.Job) (Result, error) {
	limit := job.Limit()
	if need := len(job.Seed) + DecimalWidth(limit); need > cap(s.scratch) {
		return Result{}, fmt.Errorf("%w: candidate needs %d bytes, scratch holds %d",
			errors.ErrSeedTooLong, need, cap(s.scratch))
	}

	target := []byte(job.Target)
	candidate := append(s.scratch[:0], job.Seed...)
	seedLen := len(candidate)

	started := time.Now()
	var res Result
	for nonce := uint64(0); nonce < limit; nonce++ {
		if nonce%checkEvery == 0 && nonce > 0 {
			if err := ctx.Err(); err != nil {
				res.Elapsed = time.Since(started)
				return res, err
			}
		}
		candidate = strconv.AppendUint(candidate[:seedLen], nonce, 10)
		res.Evaluated++
		if s.eval.Evaluate(candidate, target) {
			res.Found = true
			res.Nonce = nonce
			break
		}
	}
	res.Elapsed = time.Since(started)
	return res, nil
}

// DecimalWidth returns the number of decimal digits of the largest nonce
// below limit. It is at least 1.
func DecimalWidth(limit uint64) int {
	if limit <= 1 {
		return 1
	}
	n := limit - 1
	width := 1
	for n >= 10 {
		n /= 10
		width++
	}
	return width
}
