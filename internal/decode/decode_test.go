package decode

import (
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/sentineltrail/sentinel/internal/heuristic"
	"github.com/sentineltrail/sentinel/internal/ipproto"
	"github.com/sentineltrail/sentinel/internal/sink"
	"github.com/sentineltrail/sentinel/internal/trail"
)

func newSnapshot() *trail.Snapshot {
	return trail.NewSnapshot()
}

// Scenario 1 (spec.md §8): IP match on SYN.
func TestDecodeIPMatchOnSYN(t *testing.T) {
	snap := newSnapshot()
	snap.IP["1.2.3.4"] = trail.Entry{Indicator: "badhost", Source: "feedA"}

	tcp := buildTCP(55555, 80, 0x02, nil)
	frame := buildEthIPv4(ipproto.TCP, "10.0.0.1", "1.2.3.4", tcp)

	d := &Decoder{}
	got := d.Decode(frame, 1000, 0, snap, heuristic.NewCounters())

	if len(got) != 1 {
		t.Fatalf("expected exactly one record, got %d: %s", len(got), spew.Sdump(got))
	}
	want := sink.Record{
		Sec: 1000, Usec: 0,
		SrcIP: "10.0.0.1", SrcPort: "55555",
		DstIP: "1.2.3.4", DstPort: "80",
		Transport: "TCP", TrailKind: trail.IP, TrailValue: "1.2.3.4",
		Indicator: "badhost", Source: "feedA",
	}
	if got[0] != want {
		t.Fatalf("record mismatch:\ngot  %s\nwant %s", spew.Sdump(got[0]), spew.Sdump(want))
	}
}

func TestDecodeSYNACKDoesNotMatch(t *testing.T) {
	snap := newSnapshot()
	snap.IP["1.2.3.4"] = trail.Entry{Indicator: "badhost", Source: "feedA"}

	tcp := buildTCP(55555, 80, 0x12, nil) // SYN+ACK
	frame := buildEthIPv4(ipproto.TCP, "10.0.0.1", "1.2.3.4", tcp)

	d := &Decoder{}
	got := d.Decode(frame, 1000, 0, snap, heuristic.NewCounters())
	if len(got) != 0 {
		t.Fatalf("SYN+ACK must not trigger the SYN-gate alert, got %s", spew.Sdump(got))
	}
}

func TestDecodeIPMatchPrefersDstOverSrc(t *testing.T) {
	snap := newSnapshot()
	snap.IP["10.0.0.1"] = trail.Entry{Indicator: "src-bad", Source: "feedS"}
	snap.IP["1.2.3.4"] = trail.Entry{Indicator: "dst-bad", Source: "feedD"}

	tcp := buildTCP(55555, 80, 0x02, nil)
	frame := buildEthIPv4(ipproto.TCP, "10.0.0.1", "1.2.3.4", tcp)

	d := &Decoder{}
	got := d.Decode(frame, 1000, 0, snap, heuristic.NewCounters())
	if len(got) != 1 || got[0].TrailValue != "1.2.3.4" {
		t.Fatalf("expected dst_ip preferred, got %s", spew.Sdump(got))
	}
}

// Scenario 2 (spec.md §8): URL match, path beats host+path.
func TestDecodeHTTPURLMatch(t *testing.T) {
	snap := newSnapshot()
	snap.URL["/evil.php"] = trail.Entry{Indicator: "pX", Source: "sX"}

	req := []byte("GET /evil.php?x=1 HTTP/1.1\r\nHost: example.com\r\n\r\n")
	tcp := buildTCP(55555, 80, 0x18, req) // PSH+ACK
	frame := buildEthIPv4(ipproto.TCP, "10.0.0.1", "1.2.3.4", tcp)

	d := &Decoder{}
	got := d.Decode(frame, 2000, 0, snap, heuristic.NewCounters())
	if len(got) != 1 {
		t.Fatalf("expected one URL alert, got %s", spew.Sdump(got))
	}
	if got[0].TrailKind != trail.URL || got[0].TrailValue != "/evil.php" {
		t.Fatalf("expected URL match on bare path, got %s", spew.Sdump(got[0]))
	}
}

func TestDecodeHTTPURLMatchFallsBackToHostPath(t *testing.T) {
	snap := newSnapshot()
	snap.URL["example.com/evil.php"] = trail.Entry{Indicator: "pX", Source: "sX"}

	req := []byte("GET /evil.php HTTP/1.1\r\nHost: example.com\r\n\r\n")
	tcp := buildTCP(55555, 80, 0x18, req)
	frame := buildEthIPv4(ipproto.TCP, "10.0.0.1", "1.2.3.4", tcp)

	d := &Decoder{}
	got := d.Decode(frame, 2000, 0, snap, heuristic.NewCounters())
	if len(got) != 1 || got[0].TrailValue != "example.com/evil.php" {
		t.Fatalf("expected host+path fallback match, got %s", spew.Sdump(got))
	}
}

// Scenario 3 (spec.md §8): DNS suffix match with formatting.
func TestDecodeDNSSuffixMatch(t *testing.T) {
	snap := newSnapshot()
	snap.DNS["bad.example"] = trail.Entry{Indicator: "pY", Source: "sY"}

	q := buildDNSQuestion(0x01, 0x00, "sub.bad.example", 1 /* A */, 1 /* IN */)
	udp := buildUDP(33333, 53, q)
	frame := buildEthIPv4(ipproto.UDP, "10.0.0.2", "8.8.8.8", udp)

	d := &Decoder{}
	got := d.Decode(frame, 3000, 0, snap, heuristic.NewCounters())
	if len(got) != 1 {
		t.Fatalf("expected one DNS alert, got %s", spew.Sdump(got))
	}
	if got[0].TrailValue != "(sub.)bad.example" {
		t.Fatalf("expected formatted suffix trail value, got %q", got[0].TrailValue)
	}
}

func TestDecodeDNSExactMatchHasNoPrefixFormatting(t *testing.T) {
	snap := newSnapshot()
	snap.DNS["bad.example"] = trail.Entry{Indicator: "pY", Source: "sY"}

	q := buildDNSQuestion(0x01, 0x00, "bad.example", 1, 1)
	udp := buildUDP(33333, 53, q)
	frame := buildEthIPv4(ipproto.UDP, "10.0.0.2", "8.8.8.8", udp)

	d := &Decoder{}
	got := d.Decode(frame, 3000, 0, snap, heuristic.NewCounters())
	if len(got) != 1 || got[0].TrailValue != "bad.example" {
		t.Fatalf("expected exact match trail value, got %s", spew.Sdump(got))
	}
}

func TestDecodeDNSPTRTypeIsExcluded(t *testing.T) {
	snap := newSnapshot()
	snap.DNS["bad.example"] = trail.Entry{Indicator: "pY", Source: "sY"}

	q := buildDNSQuestion(0x01, 0x00, "bad.example", 12 /* PTR */, 1)
	udp := buildUDP(33333, 53, q)
	frame := buildEthIPv4(ipproto.UDP, "10.0.0.2", "8.8.8.8", udp)

	d := &Decoder{}
	got := d.Decode(frame, 3000, 0, snap, heuristic.NewCounters())
	if len(got) != 0 {
		t.Fatalf("PTR queries must not match, got %s", spew.Sdump(got))
	}
}

func TestDecodeDNSQDCountZeroNoAlert(t *testing.T) {
	snap := newSnapshot()
	snap.DNS["bad.example"] = trail.Entry{Indicator: "pY", Source: "sY"}

	q := buildDNSQuestion(0x01, 0x00, "bad.example", 1, 1)
	binaryPutUint16(q, 4, 0) // force QDCOUNT=0
	udp := buildUDP(33333, 53, q)
	frame := buildEthIPv4(ipproto.UDP, "10.0.0.2", "8.8.8.8", udp)

	d := &Decoder{}
	got := d.Decode(frame, 3000, 0, snap, heuristic.NewCounters())
	if len(got) != 0 {
		t.Fatalf("QDCOUNT=0 must not alert, got %s", spew.Sdump(got))
	}
}

func TestDecodeDNSEmptyLabelNoAlert(t *testing.T) {
	snap := newSnapshot()
	snap.DNS[""] = trail.Entry{Indicator: "should-not-match", Source: "x"}

	q := buildDNSQuestion(0x01, 0x00, "", 1, 1)
	udp := buildUDP(33333, 53, q)
	frame := buildEthIPv4(ipproto.UDP, "10.0.0.2", "8.8.8.8", udp)

	d := &Decoder{}
	got := d.Decode(frame, 3000, 0, snap, heuristic.NewCounters())
	if len(got) != 0 {
		t.Fatalf("empty question name must not alert, got %s", spew.Sdump(got))
	}
}

// Scenario 4 (spec.md §8): NXDOMAIN heuristic.
func TestDecodeNXDOMAINHeuristic(t *testing.T) {
	snap := newSnapshot()
	hs := heuristic.NewCounters()
	d := &Decoder{Threshold: 10}

	resp := buildDNSResponseHeader(0x80, 0x83, "weird.tld")
	udp := buildUDP(53, 44444, resp)
	frame := buildEthIPv4(ipproto.UDP, "8.8.8.8", "10.0.0.2", udp)

	var last []sink.Record
	for i := 0; i < 11; i++ {
		last = d.Decode(frame, 1000, 0, snap, hs)
	}
	if len(last) != 1 {
		t.Fatalf("expected heuristic alert on 11th response, got %s", spew.Sdump(last))
	}
	if last[0].Indicator != "suspicious no such name" || last[0].Source != "(heuristic)" {
		t.Fatalf("unexpected heuristic alert fields: %s", spew.Sdump(last[0]))
	}

	// one more in the next hour bucket: no alert
	got := d.Decode(frame, 7200, 0, snap, hs)
	if len(got) != 0 {
		t.Fatalf("new hour bucket should not immediately alert, got %s", spew.Sdump(got))
	}
}

// Scenario 5 (spec.md §8): non-TCP/UDP (ICMP).
func TestDecodeICMPMatch(t *testing.T) {
	snap := newSnapshot()
	snap.IP["1.2.3.4"] = trail.Entry{Indicator: "badhost", Source: "feedA"}

	frame := buildEthIPv4(ipproto.ICMP, "9.9.9.9", "1.2.3.4", []byte{0x08, 0x00, 0x00, 0x00})

	d := &Decoder{}
	got := d.Decode(frame, 4000, 0, snap, heuristic.NewCounters())
	if len(got) != 1 {
		t.Fatalf("expected one ICMP alert, got %s", spew.Sdump(got))
	}
	want := sink.Record{
		Sec: 4000, Usec: 0,
		SrcIP: "9.9.9.9", SrcPort: "-",
		DstIP: "1.2.3.4", DstPort: "-",
		Transport: "ICMP", TrailKind: trail.IP, TrailValue: "1.2.3.4",
		Indicator: "badhost", Source: "feedA",
	}
	if got[0] != want {
		t.Fatalf("record mismatch:\ngot  %s\nwant %s", spew.Sdump(got[0]), spew.Sdump(want))
	}
}

// Boundary behaviors (spec.md §8).
func TestDecodeShortFrameNoCrash(t *testing.T) {
	snap := newSnapshot()
	d := &Decoder{}
	got := d.Decode([]byte{0x01, 0x02, 0x03}, 1, 0, snap, heuristic.NewCounters())
	if got != nil {
		t.Fatalf("expected nil for short frame, got %s", spew.Sdump(got))
	}
}

func TestDecodeIsIdempotentOnRepeatedFrame(t *testing.T) {
	snap := newSnapshot()
	snap.IP["1.2.3.4"] = trail.Entry{Indicator: "badhost", Source: "feedA"}
	tcp := buildTCP(55555, 80, 0x02, nil)
	frame := buildEthIPv4(ipproto.TCP, "10.0.0.1", "1.2.3.4", tcp)

	d := &Decoder{}
	hs := heuristic.NewCounters()
	first := d.Decode(frame, 1000, 0, snap, hs)
	second := d.Decode(frame, 1000, 0, snap, hs)

	if len(first) != len(second) || first[0] != second[0] {
		t.Fatalf("decoding the same frame twice should be idempotent: %s vs %s", spew.Sdump(first), spew.Sdump(second))
	}
}

func binaryPutUint16(b []byte, off int, v uint16) {
	b[off] = byte(v >> 8)
	b[off+1] = byte(v)
}
