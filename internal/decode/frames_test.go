package decode

import (
	"encoding/binary"
	"net"
)

// buildEthIPv4 assembles a minimal Ethernet+IPv4 frame (no options, no
// real checksum — Decode never validates IP/TCP/UDP checksums) wrapping
// the given L4 payload.
func buildEthIPv4(proto byte, srcIP, dstIP string, l4 []byte) []byte {
	frame := make([]byte, 14+20+len(l4))

	// Ethernet: arbitrary MACs, EtherType IPv4.
	copy(frame[0:6], []byte{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa})
	copy(frame[6:12], []byte{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb})
	binary.BigEndian.PutUint16(frame[12:14], 0x0800)

	ip := frame[14:34]
	ip[0] = 0x45 // version 4, IHL 5
	totalLen := 20 + len(l4)
	binary.BigEndian.PutUint16(ip[2:4], uint16(totalLen))
	ip[9] = proto
	copy(ip[12:16], net.ParseIP(srcIP).To4())
	copy(ip[16:20], net.ParseIP(dstIP).To4())

	copy(frame[34:], l4)
	return frame
}

// buildTCP assembles a minimal 20-byte TCP header (no options) plus
// data, with the requested flags and data-offset field set to 5
// (20 bytes, no options).
func buildTCP(srcPort, dstPort uint16, flags byte, data []byte) []byte {
	hdr := make([]byte, 20+len(data))
	binary.BigEndian.PutUint16(hdr[0:2], srcPort)
	binary.BigEndian.PutUint16(hdr[2:4], dstPort)
	hdr[12] = 5 << 4 // doff=5, reserved=0
	hdr[13] = flags
	copy(hdr[20:], data)
	return hdr
}

func buildUDP(srcPort, dstPort uint16, data []byte) []byte {
	hdr := make([]byte, 8+len(data))
	binary.BigEndian.PutUint16(hdr[0:2], srcPort)
	binary.BigEndian.PutUint16(hdr[2:4], dstPort)
	binary.BigEndian.PutUint16(hdr[4:6], uint16(8+len(data)))
	copy(hdr[8:], data)
	return hdr
}

// buildDNSQuestion assembles a minimal DNS message with one question
// of the given name, type and class.
func buildDNSQuestion(flagsHi, flagsLo byte, name string, qtype, qclass uint16) []byte {
	msg := make([]byte, 12)
	msg[2] = flagsHi
	msg[3] = flagsLo
	binary.BigEndian.PutUint16(msg[4:6], 1) // QDCOUNT=1

	for _, label := range splitLabels(name) {
		msg = append(msg, byte(len(label)))
		msg = append(msg, []byte(label)...)
	}
	msg = append(msg, 0) // root label

	tc := make([]byte, 4)
	binary.BigEndian.PutUint16(tc[0:2], qtype)
	binary.BigEndian.PutUint16(tc[2:4], qclass)
	msg = append(msg, tc...)
	return msg
}

// buildDNSResponseHeader assembles a bare DNS header for the
// NXDOMAIN-response path (no answer records needed by the decoder).
func buildDNSResponseHeader(flagsHi, flagsLo byte, name string) []byte {
	msg := make([]byte, 12)
	msg[2] = flagsHi
	msg[3] = flagsLo
	binary.BigEndian.PutUint16(msg[4:6], 1)
	for _, label := range splitLabels(name) {
		msg = append(msg, byte(len(label)))
		msg = append(msg, []byte(label)...)
	}
	msg = append(msg, 0)
	return msg
}

func splitLabels(name string) []string {
	if name == "" {
		return nil
	}
	var labels []string
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			labels = append(labels, name[start:i])
			start = i + 1
		}
	}
	return labels
}
