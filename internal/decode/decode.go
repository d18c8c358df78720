// Package decode implements the packet decoder & matcher (PD): a pure
// function from a raw captured frame plus timestamp to zero or more
// alert records, consulting the trail store and heuristic state along
// the way (spec.md §4.3).
//
// The header-peeling idiom reuses filter/l4.go's byte-offset helpers
// (themselves adapted from the teacher's BPF-like port filters); the
// exact field layouts and branch conditions are grounded on
// original_source/sensor.py's struct-unpack sequence, since spec.md
// leaves some offsets implicit.
package decode

import (
	"encoding/binary"
	"net"
	"strconv"

	"github.com/sentineltrail/sentinel/filter"
	"github.com/sentineltrail/sentinel/internal/heuristic"
	"github.com/sentineltrail/sentinel/internal/ipproto"
	"github.com/sentineltrail/sentinel/internal/sink"
	"github.com/sentineltrail/sentinel/internal/trail"
)

// LinkType distinguishes the two datalinks spec.md requires support
// for.
type LinkType int

const (
	LinkEthernet LinkType = iota
	LinkLinuxSLL
)

// NoSuchNamePerHourThreshold is the default NXDOMAIN-per-hour
// threshold from spec.md §6, overridable per Decoder instance.
const NoSuchNamePerHourThreshold = 10

// Decoder holds the small amount of per-capture configuration PD
// needs: which datalink is in use, and the heuristic threshold.
// Decoder itself carries no mutable state — Decode takes the
// snapshot and heuristic counters explicitly so it stays a pure
// function of its arguments plus those two external references, as
// spec.md §8 requires.
type Decoder struct {
	LinkType  LinkType
	Threshold int
}

// portDash is the sentinel rendered for ports on non-TCP/UDP
// transports (spec.md §3).
const portDash = "-"

// Decode processes one captured frame and returns zero or more alert
// records. It never panics on malformed input — decode errors are
// swallowed per-packet (spec.md §4.3, §7), yielding no records for
// that frame.
func (d *Decoder) Decode(frame []byte, sec, usec int64, snap *trail.Snapshot, hs *heuristic.Counters) []sink.Record {
	if d.LinkType == LinkLinuxSLL {
		if len(frame) < ipproto.LinuxSLLHeaderLen {
			return nil
		}
		frame = frame[ipproto.LinuxSLLHeaderLen:]
	}

	ethOff, ok := filter.PeelEthernet(frame)
	if !ok {
		return nil
	}
	if filter.EthernetEtherType(frame[:ethOff]) != ipproto.EtherTypeIPv4 {
		return nil
	}

	ipRegion := frame[ethOff:]
	ihl, ok := filter.PeelIPv4(ipRegion)
	if !ok || ihl > len(ipRegion) {
		return nil
	}
	ipHdr := ipRegion[:ihl]
	totalLen := int(binary.BigEndian.Uint16(ipHdr[2:4]))
	if len(frame) < ethOff+totalLen {
		return nil
	}
	frame = frame[:ethOff+totalLen]

	proto := filter.IPv4Proto(ipHdr)
	srcAddr := make(net.IP, 4)
	dstAddr := make(net.IP, 4)
	filter.IPv4SrcAddr(ipHdr, srcAddr)
	filter.IPv4DstAddr(ipHdr, dstAddr)
	srcIP, dstIP := srcAddr.String(), dstAddr.String()

	l4Off := ethOff + ihl
	if l4Off > len(frame) {
		return nil
	}
	payload := frame[l4Off:]

	switch proto {
	case ipproto.TCP:
		return d.decodeTCP(payload, sec, usec, srcIP, dstIP, snap, l4Off, frame)
	case ipproto.UDP:
		return d.decodeUDP(payload, sec, usec, srcIP, dstIP, snap, hs)
	default:
		if name, ok := ipproto.Name(proto); ok {
			if rec, matched := matchIPTrail(sec, usec, srcIP, dstIP, name, portDash, portDash, snap); matched {
				return []sink.Record{rec}
			}
		}
		return nil
	}
}

// matchIPTrail applies spec.md's repeated "dst_ip preferred over
// src_ip" trail-match rule, shared by the TCP SYN gate, the UDP
// non-DNS path, and the generic IP-protocol path.
func matchIPTrail(sec, usec int64, srcIP, dstIP, transport, srcPort, dstPort string, snap *trail.Snapshot) (sink.Record, bool) {
	if e, ok := snap.Lookup(trail.IP, dstIP); ok {
		return sink.Record{
			Sec: sec, Usec: usec,
			SrcIP: srcIP, SrcPort: srcPort,
			DstIP: dstIP, DstPort: dstPort,
			Transport: transport, TrailKind: trail.IP, TrailValue: dstIP,
			Indicator: e.Indicator, Source: e.Source,
		}, true
	}
	if e, ok := snap.Lookup(trail.IP, srcIP); ok {
		return sink.Record{
			Sec: sec, Usec: usec,
			SrcIP: srcIP, SrcPort: srcPort,
			DstIP: dstIP, DstPort: dstPort,
			Transport: transport, TrailKind: trail.IP, TrailValue: srcIP,
			Indicator: e.Indicator, Source: e.Source,
		}, true
	}
	return sink.Record{}, false
}

func (d *Decoder) decodeTCP(tcp []byte, sec, usec int64, srcIP, dstIP string, snap *trail.Snapshot, l4Off int, frame []byte) []sink.Record {
	// sport(2) dport(2) seq(4) ack(4) doff_reserved(1) flags(1) = 14 bytes
	if len(tcp) < 14 {
		return nil
	}
	srcPort := binary.BigEndian.Uint16(tcp[0:2])
	dstPort := binary.BigEndian.Uint16(tcp[2:4])
	doffReserved := tcp[12]
	flags := tcp[13]

	var out []sink.Record

	if flags == 0x02 { // SYN only
		sp, dp := portString(srcPort), portString(dstPort)
		if rec, ok := matchIPTrail(sec, usec, srcIP, dstIP, "TCP", sp, dp, snap); ok {
			out = append(out, rec)
		}
	}

	if flags&0x08 != 0 { // PSH set
		tcpHdrLen := int(doffReserved>>4) << 2
		dataOff := l4Off + tcpHdrLen
		if dataOff <= len(frame) {
			data := frame[dataOff:]
			if dstPort == ipproto.HTTPPort && len(data) > 0 {
				if rec, ok := extractHTTP(data, sec, usec, srcIP, portString(srcPort), dstIP, portString(dstPort), snap); ok {
					out = append(out, rec)
				}
			}
		}
	}

	return out
}

func (d *Decoder) decodeUDP(udp []byte, sec, usec int64, srcIP, dstIP string, snap *trail.Snapshot, hs *heuristic.Counters) []sink.Record {
	if len(udp) < 4 {
		return nil
	}
	srcPort := binary.BigEndian.Uint16(udp[0:2])
	dstPort := binary.BigEndian.Uint16(udp[2:4])

	var out []sink.Record

	if srcPort != ipproto.DNSPort {
		sp, dp := portString(srcPort), portString(dstPort)
		if rec, ok := matchIPTrail(sec, usec, srcIP, dstIP, "UDP", sp, dp, snap); ok {
			out = append(out, rec)
		}
	}

	if dstPort == ipproto.DNSPort || srcPort == ipproto.DNSPort {
		if len(udp) < filter.UDPHdrLen {
			return out
		}
		dnsPayload := udp[filter.UDPHdrLen:]
		threshold := d.Threshold
		if threshold == 0 {
			threshold = NoSuchNamePerHourThreshold
		}
		if rec, ok := decodeDNS(dnsPayload, sec, usec, srcIP, srcPort, dstIP, dstPort, snap, hs, threshold); ok {
			out = append(out, rec)
		}
	}

	return out
}

func portString(p uint16) string {
	return strconv.Itoa(int(p))
}
