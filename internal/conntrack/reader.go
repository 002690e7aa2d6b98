// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package conntrack reads the connection-tracking kernel map and exposes
// per-target connection counts, per spec §4.7.
package conntrack

import (
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cilium/l4lb/internal/bpfmap"
	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/wire"
)

// Entry is one decoded conntrack row, joining its key and value.
type Entry struct {
	Key   wire.ConntrackKey
	Value wire.ConntrackValue
}

// NATDestination identifies a backend by the address/port traffic is
// actually forwarded to, post-NAT.
type NATDestination struct {
	IP   model.IPAddr
	Port uint16
}

// BackendStats is the summed packet/byte counters for one NAT destination.
type BackendStats struct {
	Connections int
	PacketsFwd  uint64
	PacketsRev  uint64
	BytesFwd    uint64
	BytesRev    uint64
}

// Stats summarizes the current conntrack map as spec §4.7 defines it: sum
// of packets/bytes grouped by NAT destination.
type Stats map[NATDestination]BackendStats

const defaultCacheSize = 4096

// Reader provides lazy iteration over a bounded conntrack map and a
// least-recently-used cache of per-target counts, so count queries made in
// a tight loop (e.g. by the weight pipeline across many targets) don't each
// force a full map scan. Cache entries expire purely on cacheTTL; GetAll,
// Count, and Stats never touch the cache.
type Reader struct {
	m        bpfmap.Map[wire.ConntrackKey, wire.ConntrackValue]
	cache    *lru.Cache
	cacheTTL time.Duration
}

type cacheEntry struct {
	count  uint64
	cached time.Time
}

// New wraps m. cacheTTL of zero disables caching (every count re-scans).
func New(m bpfmap.Map[wire.ConntrackKey, wire.ConntrackValue], cacheTTL time.Duration) (*Reader, error) {
	c, err := lru.New(defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Reader{m: m, cache: c, cacheTTL: cacheTTL}, nil
}

// GetAll returns every tracked connection. Iteration is lazy over the
// underlying map and does not hold any reader-side lock across entries.
func (r *Reader) GetAll() ([]Entry, error) {
	var entries []Entry
	err := r.m.Iterate(func(k wire.ConntrackKey, v wire.ConntrackValue) bool {
		entries = append(entries, Entry{Key: k, Value: v})
		return true
	})
	return entries, err
}

// Count returns the total number of tracked connections.
func (r *Reader) Count() (int, error) {
	entries, err := r.GetAll()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// CountForTarget returns the number of tracked connections whose original
// destination matches id, consulting and refreshing the LRU cache.
func (r *Reader) CountForTarget(id model.TargetID) (uint64, error) {
	key := id.String()
	if r.cacheTTL > 0 {
		if v, ok := r.cache.Get(key); ok {
			ce := v.(cacheEntry)
			if time.Since(ce.cached) < r.cacheTTL {
				return ce.count, nil
			}
		}
	}

	var count uint64
	err := r.m.Iterate(func(k wire.ConntrackKey, v wire.ConntrackValue) bool {
		if v.OrigDstIP == id.Address && v.OrigDstPort == id.Port {
			count++
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	if r.cacheTTL > 0 {
		r.cache.Add(key, cacheEntry{count: count, cached: time.Now()})
	}
	return count, nil
}

// Stats sums packets/bytes across every tracked connection, grouped by NAT
// destination (the backend traffic is actually forwarded to).
func (r *Reader) Stats() (Stats, error) {
	entries, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	s := make(Stats)
	for _, e := range entries {
		dst := NATDestination{IP: e.Value.NATDstIP, Port: e.Value.NATDstPort}
		agg := s[dst]
		agg.Connections++
		agg.PacketsFwd += uint64(e.Value.PacketsFwd)
		agg.PacketsRev += uint64(e.Value.PacketsRev)
		agg.BytesFwd += e.Value.BytesFwd
		agg.BytesRev += e.Value.BytesRev
		s[dst] = agg
	}
	return s, nil
}

// InvalidateTarget drops id's cached count, forcing the next
// CountForTarget to re-scan.
func (r *Reader) InvalidateTarget(id model.TargetID) {
	r.cache.Remove(id.String())
}
