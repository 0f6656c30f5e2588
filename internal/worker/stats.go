package worker

import "sync/atomic"

type counters struct {
	renders        atomic.Uint64
	cacheHits      atomic.Uint64
	coalesced      atomic.Uint64
	rasterFailures atomic.Uint64
	loadFailures   atomic.Uint64
	reallocations  atomic.Uint64
}

// Stats is a snapshot of worker counters. Values may be slightly stale.
type Stats struct {
	Phase          Phase
	Renders        uint64 // frames rasterized by the engine
	CacheHits      uint64 // frames served from the frame cache
	Coalesced      uint64 // commands replaced before the worker saw them
	RasterFailures uint64
	LoadFailures   uint64
	Reallocations  uint64 // render target (re)allocations
	Published      uint64
	MailboxDrops   uint64 // published frames nobody took before the next one
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Phase:          w.Phase(),
		Renders:        w.stats.renders.Load(),
		CacheHits:      w.stats.cacheHits.Load(),
		Coalesced:      w.stats.coalesced.Load(),
		RasterFailures: w.stats.rasterFailures.Load(),
		LoadFailures:   w.stats.loadFailures.Load(),
		Reallocations:  w.stats.reallocations.Load(),
		Published:      w.mailbox.LastID(),
		MailboxDrops:   w.mailbox.Drops(),
	}
}
