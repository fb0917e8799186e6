// Package miner runs the nonce search for a pool job.
//
// The search is independent of the proof function: an Evaluator decides
// whether a candidate satisfies a job's target, and the registry maps the
// configured name to an implementation.
package miner

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// Evaluator decides whether candidate meets target. Implementations must be
// pure and deterministic, and must not retain either slice.
type Evaluator interface {
	Evaluate(candidate, target []byte) bool
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(candidate, target []byte) bool

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(candidate, target []byte) bool {
	return f(candidate, target)
}

// Evaluator names
const (
	SHA1Prefix   = "sha1-prefix"
	SHA256Prefix = "sha256-prefix"
)

var registry = map[string]Evaluator{
	SHA1Prefix:   EvaluatorFunc(sha1Prefix),
	SHA256Prefix: EvaluatorFunc(sha256Prefix),
}

// Evaluators returns the registered evaluator names, sorted.
func Evaluators() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewEvaluator returns the evaluator registered under name.
func NewEvaluator(name string) (Evaluator, error) {
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown evaluator %q (valid: %s)", name, strings.Join(Evaluators(), ", "))
	}
	return e, nil
}

// sha1Prefix matches when the lower-case hex SHA-1 digest of the candidate
// starts with target.
func sha1Prefix(candidate, target []byte) bool {
	sum := sha1.Sum(candidate)
	var digest [2 * sha1.Size]byte
	hex.Encode(digest[:], sum[:])
	return hasPrefix(digest[:], target)
}

// sha256Prefix is sha1Prefix with SHA-256.
func sha256Prefix(candidate, target []byte) bool {
	sum := sha256.Sum256(candidate)
	var digest [2 * sha256.Size]byte
	hex.Encode(digest[:], sum[:])
	return hasPrefix(digest[:], target)
}

func hasPrefix(digest, target []byte) bool {
	if len(target) > len(digest) {
		return false
	}
	for i, c := range target {
		if digest[i] != c {
			return false
		}
	}
	return true
}
