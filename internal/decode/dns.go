package decode

import (
	"encoding/binary"
	"strings"

	"github.com/sentineltrail/sentinel/internal/heuristic"
	"github.com/sentineltrail/sentinel/internal/sink"
	"github.com/sentineltrail/sentinel/internal/trail"
)

const (
	dnsHeaderLen     = 12
	dnsStdQuery      = 0x01
	dnsRAFlagLo      = 0x83
	dnsRAFlagHiBit   = 0x80
	dnsTypePTR       = 12
	dnsClassIN       = 1
	heuristicIndic   = "suspicious no such name"
	heuristicSource  = "(heuristic)"
)

// decodeDNS implements spec.md §4.3's DNS question/response handling:
// a hand-rolled label walk (no compression-pointer support, matching
// the spec's documented limitation) feeding either the suffix-match
// trail lookup for standard queries, or the NXDOMAIN heuristic for
// name-error responses.
func decodeDNS(payload []byte, sec, usec int64, srcIP string, srcPort uint16, dstIP string, dstPort uint16, snap *trail.Snapshot, hs *heuristic.Counters, threshold int) (sink.Record, bool) {
	if len(payload) < 6 {
		return sink.Record{}, false
	}
	qdcount := binary.BigEndian.Uint16(payload[4:6])
	if qdcount == 0 {
		return sink.Record{}, false
	}

	query, offset, ok := readQuestionName(payload)
	if !ok {
		return sink.Record{}, false
	}

	flagsHi, flagsLo := payload[2], payload[3]
	sp, dp := portString(srcPort), portString(dstPort)

	switch {
	case flagsHi == dnsStdQuery:
		if offset+5 > len(payload) {
			return sink.Record{}, false
		}
		typ := binary.BigEndian.Uint16(payload[offset+1 : offset+3])
		class := binary.BigEndian.Uint16(payload[offset+3 : offset+5])
		if typ == dnsTypePTR || class != dnsClassIN {
			return sink.Record{}, false
		}

		if query == "" {
			return sink.Record{}, false
		}
		labels := strings.Split(query, ".")
		for i := range labels {
			domain := strings.Join(labels[i:], ".")
			e, found := snap.Lookup(trail.DNS, domain)
			if !found {
				continue
			}
			value := domain
			if domain != query {
				value = "(" + query[:len(query)-len(domain)] + ")" + domain
			}
			return sink.Record{
				Sec: sec, Usec: usec,
				SrcIP: srcIP, SrcPort: sp,
				DstIP: dstIP, DstPort: dp,
				Transport: "UDP", TrailKind: trail.DNS, TrailValue: value,
				Indicator: e.Indicator, Source: e.Source,
			}, true
		}
		return sink.Record{}, false

	case flagsHi&dnsRAFlagHiBit != 0 && flagsLo == dnsRAFlagLo:
		_, crossed := hs.Observe(query, sec, threshold)
		if !crossed {
			return sink.Record{}, false
		}
		return sink.Record{
			Sec: sec, Usec: usec,
			SrcIP: srcIP, SrcPort: sp,
			DstIP: dstIP, DstPort: dp,
			Transport: "UDP", TrailKind: trail.DNS, TrailValue: query,
			Indicator: heuristicIndic, Source: heuristicSource,
		}, true
	}

	return sink.Record{}, false
}

// readQuestionName walks the label-length-prefixed question name
// starting at the fixed DNS header offset of 12, with no compression
// pointer handling (spec.md §4.3, §9). It returns the dotted name
// (without trailing dot), the offset of the terminating zero-length
// byte, and whether a well-formed terminator was found at all.
func readQuestionName(payload []byte) (string, int, bool) {
	var labels []string
	offset := dnsHeaderLen
	for offset < len(payload) {
		length := int(payload[offset])
		if length == 0 {
			return strings.Join(labels, "."), offset, true
		}
		if offset+1+length > len(payload) {
			return "", 0, false
		}
		labels = append(labels, string(payload[offset+1:offset+1+length]))
		offset += length + 1
	}
	return "", 0, false
}
