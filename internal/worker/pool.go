// Package worker implements the worker pool (WP): N-1 goroutines,
// each decoding a disjoint subset of ring-buffer slots assigned by
// index modulo, generalizing the teacher's one-goroutine-per-ring
// pattern (examples/sniffer/main.go's per-*snf.Ring goroutines joined
// on a sync.WaitGroup).
package worker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sentineltrail/sentinel/internal/decode"
	"github.com/sentineltrail/sentinel/internal/heuristic"
	"github.com/sentineltrail/sentinel/internal/ring"
	"github.com/sentineltrail/sentinel/internal/sink"
	"github.com/sentineltrail/sentinel/internal/trail"
)

// spinBackoff is the brief yield between spin-wait polls of the
// next assigned slot's marker (spec.md §4.4 step 1).
const spinBackoff = 50 * time.Microsecond

// Pool owns the N-1 worker goroutines reading a single shared ring
// buffer lane-partitioned by index modulo.
type Pool struct {
	Buffer  *ring.Buffer
	Decoder *decode.Decoder
	Store   *trail.Store
	Sink    *sink.Sink
	Log     *logrus.Logger

	// Lanes is the number of workers, i.e. N-1 from spec.md §4.4.
	Lanes int
}

// Run starts all worker goroutines and blocks until every worker has
// observed its End marker (spec.md §4.2/§4.4 shutdown sequence).
func (p *Pool) Run() {
	var wg sync.WaitGroup
	for w := 0; w < p.Lanes; w++ {
		wg.Add(1)
		go func(lane int) {
			defer wg.Done()
			p.runLane(lane)
		}(w)
	}
	wg.Wait()
}

// runLane is one worker's loop: observe assigned slot indices
// i where i mod Lanes == lane, in ascending order, until an End
// marker is seen.
func (p *Pool) runLane(lane int) {
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	hs := heuristic.NewCounters()
	var lastHourSweep int64

	// i is this lane's next slot index to examine; lanes are
	// disjoint by construction (i mod Lanes == lane), so no other
	// worker ever touches this index.
	i := uint64(lane)
	if p.Lanes == 0 {
		i = 0
	}

	for {
		for {
			m := p.Buffer.MarkerAt(i)
			if m == ring.Data || m == ring.End {
				break
			}
			time.Sleep(spinBackoff)
		}

		slot := p.Buffer.Read(i)
		if slot.Marker == ring.End {
			p.Buffer.Clear(i)
			return
		}

		snap := p.Store.Load()
		records := p.Decoder.Decode(slot.Frame, int64(slot.Sec), int64(slot.Usec), snap, hs)
		for _, rec := range records {
			if err := p.Sink.Emit(rec); err != nil {
				log.WithError(err).Error("worker: event sink write failed")
			}
		}

		hour := int64(slot.Sec) / 3600
		if hour != lastHourSweep {
			hs.Sweep(hour)
			lastHourSweep = hour
		}

		p.Buffer.Clear(i)
		i += uint64(stride(p.Lanes))
	}
}

func stride(lanes int) int {
	if lanes <= 0 {
		return 1
	}
	return lanes
}
