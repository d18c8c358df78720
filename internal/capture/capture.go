// Package capture implements the capture loop (CL): opens the
// monitored interface via libpcap, verifies its link type, optionally
// installs a BPF filter, and hands every captured frame either
// directly to the decoder (inline mode) or into the ring buffer for
// the worker pool (multi-worker mode).
//
// This is the direct ecosystem analogue of the teacher's hardware
// capture open (snf.OpenHandle/dev.OpenRing in examples/sniffer/main.go):
// both "open a device, verify link-layer framing, hand bulk packets to
// gopacket.CaptureInfo-shaped callers" — gopacket/pcap is the generic
// libpcap binding where the teacher used SNF's proprietary one.
package capture

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/sirupsen/logrus"

	"github.com/sentineltrail/sentinel/internal/decode"
	"github.com/sentineltrail/sentinel/internal/heuristic"
	"github.com/sentineltrail/sentinel/internal/ring"
	"github.com/sentineltrail/sentinel/internal/sink"
	"github.com/sentineltrail/sentinel/internal/trail"
	"github.com/sentineltrail/sentinel/internal/worker"
)

// SupportedLinkTypes is the set of datalinks spec.md §4.2 requires
// support for: Ethernet and Linux "cooked capture".
var SupportedLinkTypes = map[layers.LinkType]decode.LinkType{
	layers.LinkTypeEthernet: decode.LinkEthernet,
	layers.LinkTypeLinuxSLL: decode.LinkLinuxSLL,
}

// ListInterfaces enumerates capturable interfaces, the in-scope
// contract behind spec.md §6's interface-listing requirement
// (generalizing the teacher's snf.GetIfAddrs /
// examples/ifaddrs-go/main.go enumeration to libpcap's device list).
func ListInterfaces() ([]string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(devs))
	for _, d := range devs {
		names = append(names, d.Name)
	}
	return names, nil
}

// CheckPrivileges reports whether the process has sufficient
// privileges to open a live capture, the in-scope contract behind
// spec.md §6's check_sudo() collaborator.
func CheckPrivileges() bool {
	if runtime.GOOS == "windows" {
		return true // left to the platform's WinPcap/Npcap driver
	}
	return os.Geteuid() == 0
}

// Config is the subset of internal/config.Config the capture loop
// needs.
type Config struct {
	Interface  string
	Filter     string
	SnapLen    int32
	UseWorkers bool
	RingSlots  int
	LogDir     string
}

// Loop is the capture loop (CL).
type Loop struct {
	Cfg   Config
	Store *trail.Store
	Sink  *sink.Sink
	Log   *logrus.Logger

	handle   *pcap.Handle
	linkType decode.LinkType
	pool     *worker.Pool
	buf      *ring.Buffer

	// inlineHS is the single heuristic.Counters instance used when no
	// worker pool is configured: the capture goroutine is the sole
	// reader and writer of NXDOMAIN bucket state, so it needs no
	// sharding (contrast internal/worker.Pool, which shards one
	// Counters per lane).
	inlineHS      *heuristic.Counters
	lastHourSweep int64
}

// Open opens the configured interface, installs the BPF filter if
// any, and verifies the link type (spec.md §6 process-lifecycle
// "init" steps). Non-nil errors here are setup errors: the caller
// should print the diagnostic and exit non-zero (spec.md §7).
func (l *Loop) Open() error {
	if l.Cfg.Interface == "any" && runtime.GOOS == "windows" {
		return fmt.Errorf("virtual interface 'any' is not available on Windows OS")
	}

	if !CheckPrivileges() {
		return fmt.Errorf("please run with administrator/root privileges")
	}

	devs, err := ListInterfaces()
	if err != nil {
		return fmt.Errorf("listing interfaces: %w", err)
	}
	found := false
	for _, d := range devs {
		if d == l.Cfg.Interface {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("interface %q not found, available: %v", l.Cfg.Interface, devs)
	}

	snapLen := l.Cfg.SnapLen
	if snapLen == 0 {
		snapLen = 65535
	}
	handle, err := pcap.OpenLive(l.Cfg.Interface, snapLen, true, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("opening interface %q: %w", l.Cfg.Interface, err)
	}

	if l.Cfg.Filter != "" {
		if err := handle.SetBPFFilter(l.Cfg.Filter); err != nil {
			handle.Close()
			return fmt.Errorf("setting BPF filter %q: %w", l.Cfg.Filter, err)
		}
	}

	lt, ok := SupportedLinkTypes[handle.LinkType()]
	if !ok {
		handle.Close()
		return fmt.Errorf("datalink type %q not supported", handle.LinkType())
	}

	l.handle = handle
	l.linkType = lt

	if l.Cfg.UseWorkers && runtime.NumCPU() > 1 {
		lanes := runtime.NumCPU() - 1
		l.buf = ring.NewBuffer(l.Cfg.RingSlots, ring.SlotLen(int(snapLen)))
		l.pool = &worker.Pool{
			Buffer:  l.buf,
			Decoder: &decode.Decoder{LinkType: lt},
			Store:   l.Store,
			Sink:    l.Sink,
			Log:     l.Log,
			Lanes:   lanes,
		}
	}

	if l.pool == nil {
		l.inlineHS = heuristic.NewCounters()
	}

	requestScheduling(l.Log)

	return nil
}

// Run blocks reading frames from the link until ctx is cancelled,
// dispatching each to the worker pool (if configured) or decoding it
// inline. On return it has drained the worker pool per spec.md §4.2's
// shutdown sequence.
func (l *Loop) Run(ctx context.Context) error {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	var poolDone chan struct{}
	if l.pool != nil {
		poolDone = make(chan struct{})
		go func() {
			l.pool.Run()
			close(poolDone)
		}()
	}

	inline := &decode.Decoder{LinkType: l.linkType}

	for {
		select {
		case <-ctx.Done():
			if l.pool != nil {
				for i := 0; i < l.pool.Lanes; i++ {
					l.buf.WriteEnd()
				}
				<-poolDone
			}
			return nil
		default:
		}

		data, ci, err := l.handle.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			log.WithError(err).Warn("capture: read failed, continuing")
			continue
		}

		sec := int64(ci.Timestamp.Unix())
		usec := int64(ci.Timestamp.Nanosecond() / 1000)

		if l.pool != nil {
			l.buf.Write(uint32(sec), uint32(usec), data)
			continue
		}

		snap := l.Store.Load()
		for _, rec := range inline.Decode(data, sec, usec, snap, l.inlineHS) {
			if err := l.Sink.Emit(rec); err != nil {
				log.WithError(err).Error("capture: event sink write failed")
			}
		}

		hour := sec / 3600
		if hour != l.lastHourSweep {
			l.inlineHS.Sweep(hour)
			l.lastHourSweep = hour
		}
	}
}

// Close releases the underlying pcap handle.
func (l *Loop) Close() {
	if l.handle != nil {
		l.handle.Close()
	}
}
