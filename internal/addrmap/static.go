package addrmap

import (
	"net/netip"
	"time"

	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

// staticExternalCacheLifetime is the fixed external cache lifetime static
// assignments carry, per spec §4.2.
const staticExternalCacheLifetime = 15 * time.Second

// StaticMapper is an immutable v4<->v6 bijection seeded from configuration.
// Grounded on addr_mapper/substitute/_StaticSubstituteAddressMapper.py.
type StaticMapper struct {
	forward map[netip.Addr]netip.Addr
	reverse map[netip.Addr]netip.Addr
}

// NewStaticMapper builds a StaticMapper from a list of (v4, v6) pairs.
func NewStaticMapper(assignments []StaticAssignment) *StaticMapper {
	forward := make(map[netip.Addr]netip.Addr, len(assignments))
	reverse := make(map[netip.Addr]netip.Addr, len(assignments))

	for _, a := range assignments {
		forward[a.V4] = a.V6
		reverse[a.V6] = a.V4
	}

	return &StaticMapper{forward: forward, reverse: reverse}
}

// StaticAssignment is one seeded (v4, v6) pair.
type StaticAssignment struct {
	V4 netip.Addr
	V6 netip.Addr
}

// ExternalCacheLifetime returns the fixed cache lifetime of static
// assignments.
func (m *StaticMapper) ExternalCacheLifetime() time.Duration {
	return staticExternalCacheLifetime
}

// Find4to6 looks up the v6 address statically assigned to v4.
func (m *StaticMapper) Find4to6(v4 netip.Addr) (netip.Addr, error) {
	v6, ok := m.forward[v4]
	if !ok {
		return netip.Addr{}, xlaterr.ErrAssignmentNotFound
	}
	return v6, nil
}

// Find6to4 looks up the v4 address statically assigned to v6.
func (m *StaticMapper) Find6to4(v6 netip.Addr) (netip.Addr, error) {
	v4, ok := m.reverse[v6]
	if !ok {
		return netip.Addr{}, xlaterr.ErrAssignmentNotFound
	}
	return v4, nil
}

// HasV4 reports whether v4 is claimed by a static assignment, for use by the
// dynamic mapper's do-not-assign set.
func (m *StaticMapper) HasV4(v4 netip.Addr) bool {
	_, ok := m.forward[v4]
	return ok
}
