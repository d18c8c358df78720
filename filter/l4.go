// Package filter provides raw byte-offset header peeling and small
// composable frame filters, in the pcap BPF-program sense: each
// FilterFunc takes a raw link-layer frame and answers yes/no.
//
// internal/decode uses the header-peeling helpers to walk frames. The
// port and protocol filters are standalone predicates; the capture
// loop does not call them.
package filter

import (
	"encoding/binary"

	"github.com/sentineltrail/sentinel/internal/ipproto"
)

const (
	VlanHdrLen = 4

	MacAddrLen = 6
	TCPHdrLen  = 20
	UDPHdrLen  = 8

	EtherTypeVlan = 0x8100
)

func PeelEthernet(p []byte) (offset int, ok bool) {
	return ipproto.EthLength, len(p) >= ipproto.EthLength
}

func EthernetEtherType(p []byte) (n uint16) {
	return binary.BigEndian.Uint16(p[2*MacAddrLen:])
}

func PeelVlan(p []byte) (offset int, ok bool) {
	return VlanHdrLen, len(p) >= VlanHdrLen
}

func VlanEtherType(p []byte) (n uint16) {
	return binary.BigEndian.Uint16(p)
}

func PeelIPv4(p []byte) (offset int, ok bool) {
	if len(p) < ipproto.IPv4HeaderLen {
		// IPv4 header should contain at least 20 bytes
		return
	}

	var ver int
	ver, offset = int(p[0]&0xf0)>>4, int(p[0]&0xf)<<2

	if ver != 4 || offset < ipproto.IPv4HeaderLen {
		// mangled IPv4 version or header length
		return
	}

	// final check for total length
	return offset, len(p) >= int(binary.BigEndian.Uint16(p[2:4]))
}

func IPv4SrcAddr(p []byte, addr []byte) {
	copy(addr, p[12:16])
}

func IPv4DstAddr(p []byte, addr []byte) {
	copy(addr, p[16:20])
}

func IPv4Proto(p []byte) byte {
	return p[9]
}

func PeelTCP(p []byte) (offset int, ok bool) {
	if len(p) < TCPHdrLen {
		return
	}
	offset = int(p[12]&0xf0) >> 2
	return offset, len(p) >= offset
}

func TCPSrcPort(p []byte) uint16 {
	return binary.BigEndian.Uint16(p[0:2])
}

func TCPDstPort(p []byte) uint16 {
	return binary.BigEndian.Uint16(p[2:4])
}

func PeelUDP(p []byte) (offset int, ok bool) {
	if len(p) < UDPHdrLen {
		return
	}
	totalLen := int(binary.BigEndian.Uint16(p[4:6]))
	return UDPHdrLen, len(p) >= totalLen && totalLen >= UDPHdrLen
}

func UDPSrcPort(p []byte) uint16 {
	return binary.BigEndian.Uint16(p[0:2])
}

func UDPDstPort(p []byte) uint16 {
	return binary.BigEndian.Uint16(p[2:4])
}

// peelToL4 walks Ethernet (and any stacked VLAN tags) down to the
// IPv4 payload, returning the IPv4 header/payload split and the
// protocol number, or ok=false if the frame doesn't carry IPv4.
func peelToL4(p []byte) (ip, payload []byte, proto byte, ok bool) {
	offset, good := PeelEthernet(p)
	if !good {
		return nil, nil, 0, false
	}

	eth, rest := p[:offset], p[offset:]
	etherType := EthernetEtherType(eth)

	for etherType == EtherTypeVlan {
		if offset, good = PeelVlan(rest); !good {
			return nil, nil, 0, false
		}
		eth, rest = rest[:offset], rest[offset:]
		etherType = VlanEtherType(eth)
	}

	if etherType != ipproto.EtherTypeIPv4 {
		return nil, nil, 0, false
	}

	if offset, good = PeelIPv4(rest); !good {
		return nil, nil, 0, false
	}

	return rest[:offset], rest[offset:], IPv4Proto(rest[:offset]), true
}

// TCPPortFilter reports whether a frame's TCP header (on either side)
// uses the given port.
func TCPPortFilter(port uint16) FilterFunc {
	return func(p []byte) int {
		_, payload, proto, ok := peelToL4(p)
		if !ok || proto != ipproto.TCP {
			return 0
		}

		offset, ok := PeelTCP(payload)
		if !ok {
			return 0
		}
		tcp := payload[:offset]

		if TCPSrcPort(tcp) != port && TCPDstPort(tcp) != port {
			return 0
		}
		return 1
	}
}

// UDPPortFilter reports whether a frame's UDP header (on either side)
// uses the given port.
func UDPPortFilter(port uint16) FilterFunc {
	return func(p []byte) int {
		_, payload, proto, ok := peelToL4(p)
		if !ok || proto != ipproto.UDP {
			return 0
		}

		offset, ok := PeelUDP(payload)
		if !ok {
			return 0
		}
		udp := payload[:offset]

		if UDPSrcPort(udp) != port && UDPDstPort(udp) != port {
			return 0
		}
		return 1
	}
}

// ICMPFilter reports whether a frame carries an ICMP payload,
// generalizing the TCP/UDP port filters above to the "other IP
// protocols" path of spec.md §4.3.
func ICMPFilter() FilterFunc {
	return func(p []byte) int {
		_, _, proto, ok := peelToL4(p)
		if !ok || proto != ipproto.ICMP {
			return 0
		}
		return 1
	}
}
