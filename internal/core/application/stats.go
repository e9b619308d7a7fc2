package application

import (
	"sync"

	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/axiomhq/hyperloglog"
)

type Stats struct {
	Received       uint64
	Accepted       uint64
	Rejected       uint64
	ByType         map[string]uint64
	RejectedBy     map[uint32]uint64
	DistinctPeers  uint64
	LiveSessions   int
	ReplayEntries  int
	InboundPending int
}

type statsCollector struct {
	lock       sync.Mutex
	peers      *hyperloglog.Sketch
	received   uint64
	accepted   uint64
	rejected   uint64
	byType     map[envelope.MessageType]uint64
	rejectedBy map[uint32]uint64
}

func newStatsCollector() *statsCollector {
	return &statsCollector{
		peers:      hyperloglog.New16(),
		byType:     make(map[envelope.MessageType]uint64),
		rejectedBy: make(map[uint32]uint64),
	}
}

func (s *statsCollector) observe(sender string, t envelope.MessageType) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.received++
	s.byType[t]++
	if sender != "" {
		s.peers.Insert([]byte(sender))
	}
}

func (s *statsCollector) outcome(code uint32, ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if ok {
		s.accepted++
		return
	}
	s.rejected++
	s.rejectedBy[code]++
}

func (s *statsCollector) snapshot() Stats {
	s.lock.Lock()
	defer s.lock.Unlock()

	byType := make(map[string]uint64, len(s.byType))
	for t, n := range s.byType {
		byType[t.String()] = n
	}
	rejectedBy := make(map[uint32]uint64, len(s.rejectedBy))
	for code, n := range s.rejectedBy {
		rejectedBy[code] = n
	}
	return Stats{
		Received:      s.received,
		Accepted:      s.accepted,
		Rejected:      s.rejected,
		ByType:        byType,
		RejectedBy:    rejectedBy,
		DistinctPeers: s.peers.Estimate(),
	}
}
