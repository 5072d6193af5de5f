package addrmap

import (
	"iter"
	"net/netip"
	"sync"
	"time"

	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

// DynamicOptions configures whether and how dynamic substitute allocation
// runs, mirroring translation.dynamic_substitute_addr_assigning.
type DynamicOptions struct {
	MinLifetimeAfterLastHit time.Duration
}

// SubstituteMapper coordinates one StaticMapper and a lazily-populated set
// of per-client DynamicMappers behind a single coarse mutex, per spec §5
// ("each SubstituteMapper must be guarded by a single mutex"). Grounded on
// addr_mapper/substitute/SubstituteAddressMapper.py.
type SubstituteMapper struct {
	mu sync.Mutex

	clientAllowedSubnets []netip.Prefix
	substituteSubnets    []netip.Prefix
	dynamicOptions       *DynamicOptions // nil: dynamic allocation disabled

	doNotAssignDynamically map[netip.Addr]bool
	static                 *StaticMapper
	dynamicByClient        map[netip.Addr]*DynamicMapper
}

// NewSubstituteMapper builds the coordinator from validated configuration.
func NewSubstituteMapper(
	clientAllowedSubnets []netip.Prefix,
	substituteSubnets []netip.Prefix,
	staticAssignments []StaticAssignment,
	dynamicOptions *DynamicOptions,
) *SubstituteMapper {
	doNotAssign := make(map[netip.Addr]bool, len(staticAssignments))
	for _, a := range staticAssignments {
		doNotAssign[a.V4] = true
	}

	return &SubstituteMapper{
		clientAllowedSubnets:    clientAllowedSubnets,
		substituteSubnets:       substituteSubnets,
		dynamicOptions:          dynamicOptions,
		doNotAssignDynamically: doNotAssign,
		static:                  NewStaticMapper(staticAssignments),
		dynamicByClient:         make(map[netip.Addr]*DynamicMapper),
	}
}

// Map4to6 translates a substitute v4 address to its v6 counterpart on
// behalf of validClientV4, trying the static map first and falling back to
// that client's dynamic mapper.
func (m *SubstituteMapper) Map4to6(v4, validClientV4 netip.Addr) (netip.Addr, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkClientFallback(validClientV4)

	if !ContainsStrict(v4, m.substituteSubnets) {
		return netip.Addr{}, 0, xlaterr.ErrSubstituteIPv4NotAllowed
	}

	if v6, err := m.static.Find4to6(v4); err == nil {
		return v6, m.static.ExternalCacheLifetime(), nil
	}

	dyn := m.findDynamicMapperForClient(validClientV4)
	if dyn == nil {
		return netip.Addr{}, 0, xlaterr.ErrAssignmentNotFound
	}

	v6, err := dyn.Find4to6(v4)
	if err != nil {
		return netip.Addr{}, 0, err
	}
	return v6, dyn.ExternalCacheLifetime(), nil
}

// Map6to4 translates a substitutable v6 address to a v4 address on behalf
// of validClientV4, trying the static map first and falling back to that
// client's dynamic mapper, creating a dynamic assignment when
// creationAllowed is true.
func (m *SubstituteMapper) Map6to4(v6, validClientV4 netip.Addr, creationAllowed bool) (netip.Addr, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkClientFallback(validClientV4)

	if !IsIPv6Substitutable(v6) {
		return netip.Addr{}, 0, xlaterr.ErrIPv6NotSubstitutable
	}

	if v4, err := m.static.Find6to4(v6); err == nil {
		return v4, m.static.ExternalCacheLifetime(), nil
	}

	dyn := m.findOrCreateDynamicMapperForClient(validClientV4, creationAllowed)
	if dyn == nil {
		return netip.Addr{}, 0, xlaterr.ErrAssignmentNotFound
	}

	v4, err := dyn.FindOrCreate6to4(v6, creationAllowed)
	if err != nil {
		return netip.Addr{}, 0, err
	}
	return v4, dyn.ExternalCacheLifetime(), nil
}

// checkClientFallback is the belt-and-braces re-check spec §4.4 requires:
// by the time a request reaches this coordinator, validClientV4 must
// already have passed ClientMapper's authorization check. A failure here
// can only mean a caller bypassed that check, which is a programming fault.
func (m *SubstituteMapper) checkClientFallback(validClientV4 netip.Addr) {
	if !ContainsStrict(validClientV4, m.clientAllowedSubnets) {
		xlaterr.Crash(xlaterr.NewFault("client ipv4 %s reached the substitute mapper unauthorized", validClientV4))
	}
}

func (m *SubstituteMapper) findDynamicMapperForClient(clientV4 netip.Addr) *DynamicMapper {
	if m.dynamicOptions == nil {
		return nil
	}
	return m.dynamicByClient[clientV4]
}

func (m *SubstituteMapper) findOrCreateDynamicMapperForClient(clientV4 netip.Addr, creationAllowed bool) *DynamicMapper {
	if m.dynamicOptions == nil {
		return nil
	}

	if dyn, ok := m.dynamicByClient[clientV4]; ok {
		return dyn
	}
	if !creationAllowed {
		return nil
	}

	dyn := NewDynamicMapper(m.substituteSubnets, m.doNotAssignDynamically, m.dynamicOptions.MinLifetimeAfterLastHit)
	m.dynamicByClient[clientV4] = dyn
	return dyn
}

// ClientAssignments is one client's dynamic assignments, as surfaced by
// [SubstituteMapper.IterDynamicAssignments].
type ClientAssignments struct {
	ClientV4    netip.Addr
	Assignments iter.Seq[Assignment]
}

// IterDynamicAssignments walks every client's DynamicMapper for the
// print-map dump (§6). The mutex is held for the duration of the walk, so
// callers must fully consume (or early-return from) the returned sequence
// promptly.
func (m *SubstituteMapper) IterDynamicAssignments(yield func(ClientAssignments) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for clientV4, dyn := range m.dynamicByClient {
		if !yield(ClientAssignments{ClientV4: clientV4, Assignments: dyn.IterAssignments()}) {
			return
		}
	}
}

// SubstituteSubnets returns the configured substitute pools, for callers
// that need to classify an address without performing a translation (e.g.
// the reverse DNS resolver's PTR-ownership check).
func (m *SubstituteMapper) SubstituteSubnets() []netip.Prefix {
	return m.substituteSubnets
}

// StaticAssignments returns every seeded static (v4, v6) pair, for the
// print-map dump.
func (m *SubstituteMapper) StaticAssignments() []StaticAssignment {
	out := make([]StaticAssignment, 0, len(m.static.forward))
	for v4, v6 := range m.static.forward {
		out = append(out, StaticAssignment{V4: v4, V6: v6})
	}
	return out
}
