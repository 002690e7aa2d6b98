// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/cilium/l4lb/internal/model"
)

const (
	// RouteHeaderSize is the fixed header preceding the target records.
	RouteHeaderSize = 8
	// RouteRecordSize is the fixed size of one target record.
	RouteRecordSize = 20
	// MaxRouteTargets bounds the number of target records in one route.
	MaxRouteTargets = 8
	// RouteValueMaxSize is RouteHeaderSize + MaxRouteTargets*RouteRecordSize.
	RouteValueMaxSize = RouteHeaderSize + MaxRouteTargets*RouteRecordSize
)

// RouteFlag is a bit within a WeightedRoute's flags field. Unknown bits
// must round-trip unchanged through Encode/Decode.
type RouteFlag uint16

const (
	RouteFlagSessionPersistence RouteFlag = 1 << 0
	RouteFlagProxyProtocolV2    RouteFlag = 1 << 2
)

// RouteRecord is one weighted target within a WeightedRoute.
type RouteRecord struct {
	IP               model.IPAddr
	Port             uint16
	CumulativeWeight uint8
}

// WeightedRoute is the value materialized for listen, LPM, and SNI keys.
type WeightedRoute struct {
	Flags   RouteFlag
	Records []RouteRecord // len in [1, MaxRouteTargets]
}

// Has reports whether flag f is set, without disturbing any other bits.
func (r WeightedRoute) Has(f RouteFlag) bool { return r.Flags&f != 0 }

// Encode writes the variable-length wire form of r: an 8-byte header
// followed by len(r.Records)*20 bytes of records.
func (r WeightedRoute) Encode() ([]byte, error) {
	if len(r.Records) == 0 || len(r.Records) > MaxRouteTargets {
		return nil, fmt.Errorf("wire: WeightedRoute must have 1..%d records, got %d", MaxRouteTargets, len(r.Records))
	}
	buf := make([]byte, RouteHeaderSize+len(r.Records)*RouteRecordSize)
	buf[0] = uint8(len(r.Records))
	// buf[1] is header pad, left zero.
	binary.LittleEndian.PutUint16(buf[2:4], uint16(r.Flags))
	// buf[4:8] is reserved, left zero.
	for i, rec := range r.Records {
		off := RouteHeaderSize + i*RouteRecordSize
		copy(buf[off:off+16], rec.IP[:])
		binary.LittleEndian.PutUint16(buf[off+16:off+18], rec.Port)
		buf[off+18] = rec.CumulativeWeight
		// buf[off+19] is record pad, left zero.
	}
	return buf, nil
}

// DecodeWeightedRoute parses the variable-length wire form produced by
// Encode.
func DecodeWeightedRoute(buf []byte) (WeightedRoute, error) {
	if len(buf) < RouteHeaderSize {
		return WeightedRoute{}, fmt.Errorf("wire: WeightedRoute header wants >= %d bytes, got %d", RouteHeaderSize, len(buf))
	}
	count := int(buf[0])
	if count == 0 || count > MaxRouteTargets {
		return WeightedRoute{}, fmt.Errorf("wire: WeightedRoute target_count %d out of range", count)
	}
	want := RouteHeaderSize + count*RouteRecordSize
	if len(buf) != want {
		return WeightedRoute{}, fmt.Errorf("wire: WeightedRoute wants %d bytes for %d records, got %d", want, count, len(buf))
	}
	r := WeightedRoute{
		Flags:   RouteFlag(binary.LittleEndian.Uint16(buf[2:4])),
		Records: make([]RouteRecord, count),
	}
	for i := 0; i < count; i++ {
		off := RouteHeaderSize + i*RouteRecordSize
		var rec RouteRecord
		copy(rec.IP[:], buf[off:off+16])
		rec.Port = binary.LittleEndian.Uint16(buf[off+16 : off+18])
		rec.CumulativeWeight = buf[off+18]
		r.Records[i] = rec
	}
	return r, nil
}
