package capture

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// TCPPortProgram assembles a minimal classic-BPF program equivalent to
// "ip and tcp port <port>", generalizing the teacher's CompileBPF
// (snf/bpf.go), which shelled out to libpcap's cgo-bound compiler.
// golang.org/x/net/bpf has no such C dependency: it only assembles
// instructions handed to it directly, so this builds the equivalent
// program by hand rather than compiling a filter-expression string.
//
// This exists so filter logic can be validated offline (no live or
// pcap-file handle required) with golang.org/x/net/bpf's own VM,
// complementing gopacket/pcap.Handle.SetBPFFilter which needs one.
func TCPPortProgram(port uint16) ([]bpf.RawInstruction, error) {
	raw, err := bpf.Assemble([]bpf.Instruction{
		// Load EtherType; bail unless IPv4.
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipFalse: 9},

		// Load IP protocol; bail unless TCP (6).
		bpf.LoadAbsolute{Off: 23, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 6, SkipFalse: 7},

		// IHL*4 into X via LoadMemShift at byte 14.
		bpf.LoadMemShift{Off: 14},

		// Source port.
		bpf.LoadIndirect{Off: 14, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(port), SkipTrue: 3},

		// Destination port.
		bpf.LoadIndirect{Off: 16, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(port), SkipTrue: 1},

		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: 0xffff},
		bpf.RetConstant{Val: 0},
	})
	if err != nil {
		return nil, fmt.Errorf("assembling BPF program: %w", err)
	}
	return raw, nil
}

// RunBPF executes an assembled program against a raw frame, returning
// the number of bytes the kernel filter would keep (0 means drop).
func RunBPF(raw []bpf.RawInstruction, frame []byte) (int, error) {
	vm, err := bpf.NewVM(rawToInstructions(raw))
	if err != nil {
		return 0, fmt.Errorf("building BPF VM: %w", err)
	}
	return vm.Run(frame)
}

func rawToInstructions(raw []bpf.RawInstruction) []bpf.Instruction {
	insns := make([]bpf.Instruction, len(raw))
	for i, r := range raw {
		insns[i] = r
	}
	return insns
}
