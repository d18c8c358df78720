package decode

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/sentineltrail/sentinel/internal/sink"
	"github.com/sentineltrail/sentinel/internal/trail"
)

var (
	crlf       = []byte("\r\n")
	hostHeader = []byte("\r\nHost:")
	httpMarker = []byte(" HTTP/")
)

// extractHTTP implements the HTTP request extractor of spec.md §4.3:
// pull the request path and Host header out of a PSH/port-80 TCP
// payload, build an ordered candidate list, and match it against
// TS.URL (path first, then host+path) for each candidate in turn.
func extractHTTP(data []byte, sec, usec int64, srcIP, srcPort, dstIP, dstPort string, snap *trail.Snapshot) (sink.Record, bool) {
	lineEnd := bytes.Index(data, crlf)
	if lineEnd < 0 {
		return sink.Record{}, false
	}
	line := data[:lineEnd]

	if bytes.Count(line, []byte(" ")) != 2 || !bytes.Contains(line, httpMarker) {
		return sink.Record{}, false
	}
	fields := bytes.SplitN(line, []byte(" "), 3)
	if len(fields) < 2 {
		return sink.Record{}, false
	}
	path := string(fields[1])

	hostIdx := bytes.Index(data, hostHeader)
	if hostIdx < 0 {
		return sink.Record{}, false
	}
	hostStart := hostIdx + len(hostHeader)
	rest := data[hostStart:]
	hostEnd := bytes.Index(rest, crlf)
	if hostEnd < 0 {
		return sink.Record{}, false
	}
	host := strings.TrimSpace(string(rest[:hostEnd]))

	if q := strings.IndexByte(path, '?'); q >= 0 {
		path = path[:q]
	}
	path = strings.TrimSuffix(path, "/")

	candidates := []string{path}
	if ext := filepath.Ext(path); ext != "" {
		candidates = append(candidates, path[:len(path)-len(ext)])
	}
	if strings.Count(path, "/") > 1 {
		candidates = append(candidates, path[:strings.LastIndex(path, "/")])
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if e, ok := snap.Lookup(trail.URL, c); ok {
			return sink.Record{
				Sec: sec, Usec: usec,
				SrcIP: srcIP, SrcPort: srcPort,
				DstIP: dstIP, DstPort: dstPort,
				Transport: "TCP", TrailKind: trail.URL, TrailValue: c,
				Indicator: e.Indicator, Source: e.Source,
			}, true
		}
		url := host + c
		if e, ok := snap.Lookup(trail.URL, url); ok {
			return sink.Record{
				Sec: sec, Usec: usec,
				SrcIP: srcIP, SrcPort: srcPort,
				DstIP: dstIP, DstPort: dstPort,
				Transport: "TCP", TrailKind: trail.URL, TrailValue: url,
				Indicator: e.Indicator, Source: e.Source,
			}, true
		}
	}

	return sink.Record{}, false
}
