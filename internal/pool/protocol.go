// Package pool implements the client side of the pool's line protocol.
//
// On connect the pool sends a 4-byte version banner. After that every
// message is a single '\n'-terminated line of ASCII:
//
//	C→S  JOB,<identity>,<device-tag>
//	S→C  <seed>,<target>
//	C→S  SHARE,1,<identity>,<seed>,<nonce>
//	S→C  OK | FAIL | FAIL,<reason>
package pool

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/Iron-Ham/poolminer/internal/errors"
)

// BannerSize is the length of the version banner sent by the pool on connect.
const BannerSize = 4

// ShareVersion is the message version carried by every share submission.
const ShareVersion = "1"

// NonceSpan is the nonce range size per unit of difficulty.
const NonceSpan = 100

// Job is one unit of work received from the pool.
type Job struct {
	Seed       string
	Target     string
	Difficulty int
}

// Limit returns the exclusive upper bound of the nonce range.
func (j Job) Limit() uint64 {
	if j.Difficulty <= 0 {
		return 0
	}
	return uint64(j.Difficulty) * NonceSpan
}

// Ack is the pool's verdict on a submitted share.
type Ack struct {
	Accepted bool
	Reason   string
}

// AppendJobRequest appends a job request line to dst.
func AppendJobRequest(dst []byte, identity, deviceTag string) []byte {
	dst = append(dst, "JOB,"...)
	dst = append(dst, identity...)
	dst = append(dst, ',')
	dst = append(dst, deviceTag...)
	return append(dst, '\n')
}

// AppendShare appends a share submission line to dst.
func AppendShare(dst []byte, identity, seed string, nonce uint64) []byte {
	dst = append(dst, "SHARE,"...)
	dst = append(dst, ShareVersion...)
	dst = append(dst, ',')
	dst = append(dst, identity...)
	dst = append(dst, ',')
	dst = append(dst, seed...)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, nonce, 10)
	return append(dst, '\n')
}

// ParseJob parses a job record. The record must hold exactly two non-empty
// comma-separated fields; a trailing "\n" or "\r\n" is ignored. The returned
// Job has no difficulty set.
func ParseJob(record []byte) (Job, error) {
	line := trimEOL(record)

	seed, target, ok := bytes.Cut(line, []byte{','})
	if !ok || len(seed) == 0 || len(target) == 0 || bytes.IndexByte(target, ',') >= 0 {
		return Job{}, fmt.Errorf("%w: %q", errors.ErrMalformedRecord, line)
	}
	return Job{Seed: string(seed), Target: string(target)}, nil
}

// ParseAck parses the pool's reply to a share submission. Anything other
// than OK or FAIL[,reason] wraps ErrUnexpectedAck.
func ParseAck(line []byte) (Ack, error) {
	line = trimEOL(line)

	switch {
	case string(line) == "OK":
		return Ack{Accepted: true}, nil
	case string(line) == "FAIL":
		return Ack{}, nil
	case bytes.HasPrefix(line, []byte("FAIL,")):
		return Ack{Reason: string(line[len("FAIL,"):])}, nil
	default:
		return Ack{}, fmt.Errorf("%w: %q", errors.ErrUnexpectedAck, line)
	}
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	return bytes.TrimSuffix(b, []byte{'\r'})
}
