package pool

import (
	"testing"

	"github.com/Iron-Ham/poolminer/internal/errors"
)

func TestAppendJobRequest(t *testing.T) {
	got := AppendJobRequest(nil, "rig-7", "ESP")
	if string(got) != "JOB,rig-7,ESP\n" {
		t.Errorf("AppendJobRequest() = %q", got)
	}

	buf := make([]byte, 0, 64)
	buf = AppendJobRequest(buf, "a", "b")
	buf = AppendJobRequest(buf[:0], "c", "d")
	if string(buf) != "JOB,c,d\n" {
		t.Errorf("reused buffer = %q", buf)
	}
}

func TestAppendShare(t *testing.T) {
	tests := []struct {
		nonce uint64
		want  string
	}{
		{0, "SHARE,1,rig-7,abc123,0\n"},
		{99, "SHARE,1,rig-7,abc123,99\n"},
		{750099, "SHARE,1,rig-7,abc123,750099\n"},
	}
	for _, tt := range tests {
		if got := AppendShare(nil, "rig-7", "abc123", tt.nonce); string(got) != tt.want {
			t.Errorf("AppendShare(%d) = %q, want %q", tt.nonce, got, tt.want)
		}
	}
}

func TestParseJob(t *testing.T) {
	tests := []struct {
		name       string
		record     string
		wantSeed   string
		wantTarget string
		wantErr    bool
	}{
		{name: "plain", record: "abc123,ffff", wantSeed: "abc123", wantTarget: "ffff"},
		{name: "newline", record: "abc123,ffff\n", wantSeed: "abc123", wantTarget: "ffff"},
		{name: "crlf", record: "abc123,00\r\n", wantSeed: "abc123", wantTarget: "00"},
		{name: "empty", record: "", wantErr: true},
		{name: "no comma", record: "abc123", wantErr: true},
		{name: "empty seed", record: ",ffff", wantErr: true},
		{name: "empty target", record: "abc123,", wantErr: true},
		{name: "three fields", record: "abc,ff,7501", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := ParseJob([]byte(tt.record))
			if tt.wantErr {
				if !errors.Is(err, errors.ErrMalformedRecord) {
					t.Errorf("ParseJob(%q) error = %v, want ErrMalformedRecord", tt.record, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJob(%q) error = %v", tt.record, err)
			}
			if job.Seed != tt.wantSeed || job.Target != tt.wantTarget {
				t.Errorf("ParseJob(%q) = %+v", tt.record, job)
			}
		})
	}
}

func TestParseJob_RoundTrip(t *testing.T) {
	for _, j := range []Job{{Seed: "abc123", Target: "ffff"}, {Seed: "s", Target: "0"}} {
		got, err := ParseJob([]byte(j.Seed + "," + j.Target + "\n"))
		if err != nil || got != j {
			t.Errorf("ParseJob(format(%+v)) = %+v, %v", j, got, err)
		}
	}
}

func TestJob_Limit(t *testing.T) {
	tests := []struct {
		difficulty int
		want       uint64
	}{
		{1, 100},
		{7501, 750100},
		{0, 0},
		{-3, 0},
	}
	for _, tt := range tests {
		if got := (Job{Difficulty: tt.difficulty}).Limit(); got != tt.want {
			t.Errorf("Limit() with difficulty %d = %d, want %d", tt.difficulty, got, tt.want)
		}
	}
}

func TestParseAck(t *testing.T) {
	tests := []struct {
		line       string
		want       Ack
		unexpected bool
	}{
		{line: "OK", want: Ack{Accepted: true}},
		{line: "OK\n", want: Ack{Accepted: true}},
		{line: "FAIL", want: Ack{}},
		{line: "FAIL,stale job", want: Ack{Reason: "stale job"}},
		{line: "ok", unexpected: true},
		{line: "", unexpected: true},
		{line: "FAILED", unexpected: true},
	}

	for _, tt := range tests {
		got, err := ParseAck([]byte(tt.line))
		if tt.unexpected {
			if !errors.Is(err, errors.ErrUnexpectedAck) {
				t.Errorf("ParseAck(%q) error = %v, want ErrUnexpectedAck", tt.line, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseAck(%q) = %+v, %v; want %+v", tt.line, got, err, tt.want)
		}
	}
}
