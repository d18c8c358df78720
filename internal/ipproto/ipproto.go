// Package ipproto holds the small protocol-number tables and wire
// constants shared by the capture and decode packages.
package ipproto

// Link-layer and network-layer constants, mirrored from the original
// sensor's settings module and the teacher's filter package constants
// (filter/l4.go EthernetHdrLen/EtherTypeIPv4).
const (
	// EthLength is the fixed length of an Ethernet II header.
	EthLength = 14

	// LinuxSLLHeaderLen is the length of the Linux "cooked capture"
	// pseudo-header prefixed ahead of the Ethernet header on the
	// LINUX_SLL datalink.
	LinuxSLLHeaderLen = 2

	// EtherTypeIPv4 is the EtherType value selecting the IPv4 path.
	EtherTypeIPv4 = 0x0800

	// IPv4HeaderLen is the fixed-size portion of an IPv4 header.
	IPv4HeaderLen = 20

	// TCP is the IPv4 protocol number for TCP.
	TCP = 6
	// UDP is the IPv4 protocol number for UDP.
	UDP = 17
	// ICMP is the IPv4 protocol number for ICMP.
	ICMP = 1

	// DNSPort is the well-known UDP port for DNS.
	DNSPort = 53
	// HTTPPort is the well-known TCP port for HTTP.
	HTTPPort = 80
)

// LUT maps IP protocol numbers to their short display name, for
// protocols handled outside the dedicated TCP/UDP paths (spec.md
// §4.3 "Other IP protocols"). Only protocols present here are
// eligible for the generic IP-trail match.
var LUT = map[byte]string{
	ICMP: "ICMP",
}

// Name reports the short protocol name for proto, and whether proto
// is present in the lookup table.
func Name(proto byte) (string, bool) {
	name, ok := LUT[proto]
	return name, ok
}
