// Package sink implements the event sink (ES): append-only emission
// of alert records to a per-date log file, one write syscall per
// record so that concurrent workers never interleave a single
// record's bytes (spec.md §3, §4.5).
package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sentineltrail/sentinel/internal/trail"
)

// Record is the alert record tuple from spec.md §3, emitted verbatim.
// Ports use the sentinel "-" for non-TCP/UDP transports.
type Record struct {
	Sec        int64      `json:"sec"`
	Usec       int64      `json:"usec"`
	SrcIP      string     `json:"src_ip"`
	SrcPort    string     `json:"src_port"`
	DstIP      string     `json:"dst_ip"`
	DstPort    string     `json:"dst_port"`
	Transport  string     `json:"transport"`
	TrailKind  trail.Kind `json:"trail_kind"`
	TrailValue string     `json:"trail_value"`
	Indicator  string     `json:"indicator"`
	Source     string     `json:"source"`
}

// MarshalJSON renders TrailKind as its string form so log lines read
// "IP"/"DNS"/"URL" instead of a bare integer.
func (r Record) MarshalJSON() ([]byte, error) {
	type alias struct {
		Sec        int64  `json:"sec"`
		Usec       int64  `json:"usec"`
		SrcIP      string `json:"src_ip"`
		SrcPort    string `json:"src_port"`
		DstIP      string `json:"dst_ip"`
		DstPort    string `json:"dst_port"`
		Transport  string `json:"transport"`
		TrailKind  string `json:"trail_kind"`
		TrailValue string `json:"trail_value"`
		Indicator  string `json:"indicator"`
		Source     string `json:"source"`
	}
	return json.Marshal(alias{
		Sec: r.Sec, Usec: r.Usec,
		SrcIP: r.SrcIP, SrcPort: r.SrcPort,
		DstIP: r.DstIP, DstPort: r.DstPort,
		Transport:  r.Transport,
		TrailKind:  r.TrailKind.String(),
		TrailValue: r.TrailValue,
		Indicator:  r.Indicator,
		Source:     r.Source,
	})
}

// Sink appends Records to a per-date log file under Dir. A single
// mutex guards the write path, satisfying spec.md §5's "one writer at
// a time, records MUST NOT interleave" requirement (resolved choice
// (b): mutex-guarded single write).
type Sink struct {
	Dir string
	Log *logrus.Logger

	mu      sync.Mutex
	curDate string
	file    *os.File
}

// EnsureLogDir creates dir (and parents) if missing, the in-scope
// contract behind spec.md §6's create_log_directory() collaborator.
func EnsureLogDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// Emit appends rec as one JSON line to today's log file (dated by
// rec.Sec), opening or rotating the destination file as needed. The
// record is marshalled first; file rotation plus the single write is
// then one critical section, so no two records' bytes can interleave.
func (s *Sink) Emit(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	date := time.Unix(rec.Sec, 0).UTC().Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil || date != s.curDate {
		if s.file != nil {
			s.file.Close()
		}
		path := filepath.Join(s.Dir, fmt.Sprintf("%s.log", date))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			if s.Log != nil {
				s.Log.WithError(err).Error("event sink: failed to open log file")
			}
			return err
		}
		s.file = f
		s.curDate = date
	}

	if _, err := s.file.Write(line); err != nil {
		if s.Log != nil {
			s.Log.WithError(err).Error("event sink: write failed")
		}
		return err
	}
	return nil
}

// Close releases the currently open log file, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
