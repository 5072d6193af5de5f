package addrmap

import (
	"iter"
	"net/netip"
	"time"

	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

// externalCacheLifetimeLimit is the maximum external cache lifetime a
// dynamic mapper will ever report, per spec §4.3.
const externalCacheLifetimeLimit = 10 * time.Second

// monotonicNow returns a monotonic timestamp in nanoseconds, the Go
// equivalent of time.clock_gettime(CLOCK_MONOTONIC_RAW): time.Since always
// uses the monotonic reading embedded in a time.Time value, so subtracting
// two monotonicNow() results is immune to wall-clock adjustments.
var monotonicEpoch = time.Now()

func monotonicNow() int64 {
	return int64(time.Since(monotonicEpoch))
}

// Assignment is a snapshot of one dynamic (v4, v6) pair, as surfaced by
// [DynamicMapper.IterAssignments] and the print-map dump.
type Assignment struct {
	V4                       netip.Addr
	V6                       netip.Addr
	RemainingGuaranteedLife  time.Duration
	MayBeReplaced            bool
}

// DynamicMapper holds one client's dynamically-assigned substitute
// addresses. Grounded on
// addr_mapper/substitute/_DynamicSubstituteAddressMapper.py.
type DynamicMapper struct {
	forward map[netip.Addr]*record // keyed by v4
	reverse map[netip.Addr]*record // keyed by v6
	queue   *replacementQueue

	minLifetimeAfterLastHit time.Duration
	externalCacheLifetime   time.Duration

	freshNext func() (netip.Addr, bool)
	freshStop func()
	freshDone bool
}

// NewDynamicMapper builds a DynamicMapper over substituteSubnets, excluding
// doNotAssign (the static v4 set) and network/broadcast addresses from
// dynamic allocation.
func NewDynamicMapper(substituteSubnets []netip.Prefix, doNotAssign map[netip.Addr]bool, minLifetimeAfterLastHit time.Duration) *DynamicMapper {
	next, stop := iter.Pull(freshAddressSeq(substituteSubnets, doNotAssign))

	return &DynamicMapper{
		forward:                 make(map[netip.Addr]*record),
		reverse:                 make(map[netip.Addr]*record),
		queue:                   newReplacementQueue(),
		minLifetimeAfterLastHit: minLifetimeAfterLastHit,
		externalCacheLifetime:   calculateExternalCacheLifetime(minLifetimeAfterLastHit),
		freshNext:               next,
		freshStop:               stop,
	}
}

// freshAddressSeq lazily yields every v4 address in substituteSubnets that
// is neither in doNotAssign nor a network/broadcast address of its subnet.
// Grounded on _generator_of_ipv4s_to_assign; translated from Python's
// push-style generator to iter.Seq/iter.Pull, matching spec §9's guidance
// that the Go target does not need a push-style coroutine here either.
func freshAddressSeq(subnets []netip.Prefix, doNotAssign map[netip.Addr]bool) iter.Seq[netip.Addr] {
	return func(yield func(netip.Addr) bool) {
		for _, subnet := range subnets {
			addr := subnet.Masked().Addr()
			last := lastAddr(subnet)

			for {
				if !doNotAssign[addr] && !isNetworkOrBroadcast(addr, subnet) {
					if !yield(addr) {
						return
					}
				}
				if addr == last {
					break
				}
				addr = addr.Next()
			}
		}
	}
}

func calculateExternalCacheLifetime(minLifetimeAfterLastHit time.Duration) time.Duration {
	lifetime := minLifetimeAfterLastHit/3 - time.Second
	if lifetime < 0 {
		return 0
	}
	if lifetime > externalCacheLifetimeLimit {
		return externalCacheLifetimeLimit
	}
	return lifetime
}

// ExternalCacheLifetime returns this mapper's external cache lifetime.
func (m *DynamicMapper) ExternalCacheLifetime() time.Duration {
	return m.externalCacheLifetime
}

// Find4to6 looks up the v6 address dynamically assigned to v4, refreshing
// its last-hit timestamp on success.
func (m *DynamicMapper) Find4to6(v4 netip.Addr) (netip.Addr, error) {
	r, ok := m.forward[v4]
	if !ok {
		return netip.Addr{}, xlaterr.ErrAssignmentNotFound
	}

	m.registerHit(r)
	return r.v6, nil
}

// FindOrCreate6to4 looks up the v4 address dynamically assigned to v6. If
// none exists and creationAllowed is true, it allocates one per the
// allocation algorithm in spec §4.3. v6 must already be substitutable; a
// non-substitutable v6 reaching here is a programming fault.
func (m *DynamicMapper) FindOrCreate6to4(v6 netip.Addr, creationAllowed bool) (netip.Addr, error) {
	if r, ok := m.reverse[v6]; ok {
		m.registerHit(r)
		return r.v4, nil
	}

	if !creationAllowed {
		return netip.Addr{}, xlaterr.ErrAssignmentNotFound
	}

	if !IsIPv6Substitutable(v6) {
		xlaterr.Crash(xlaterr.NewFault("ipv6 address %s reached allocation unvalidated", v6))
	}

	r, err := m.createWithFreshAddress(v6)
	if err != nil {
		return netip.Addr{}, err
	}
	if r == nil {
		r, err = m.createWithRecycledAddress(v6)
		if err != nil {
			return netip.Addr{}, err
		}
	}

	return r.v4, nil
}

// createWithFreshAddress attempts step 1 of the allocation algorithm: take
// the next never-yet-assigned address from the fresh-address iterator. It
// returns (nil, nil) once the iterator is exhausted, signaling the caller
// to fall through to eviction.
func (m *DynamicMapper) createWithFreshAddress(v6 netip.Addr) (*record, error) {
	if m.freshDone {
		return nil, nil
	}

	v4, ok := m.freshNext()
	if !ok {
		m.freshDone = true
		m.freshStop()
		return nil, nil
	}

	r := &record{v4: v4, v6: v6, lastHitAt: monotonicNow()}
	m.addRecord(r)
	return r, nil
}

// createWithRecycledAddress attempts step 2 of the allocation algorithm:
// evict the oldest record if its minimum lifetime has elapsed.
func (m *DynamicMapper) createWithRecycledAddress(v6 netip.Addr) (*record, error) {
	old := m.queue.oldest()
	if old == nil {
		return nil, xlaterr.ErrSubstituteSpaceFull
	}

	if monotonicNow()-old.lastHitAt < int64(m.minLifetimeAfterLastHit) {
		return nil, xlaterr.ErrSubstituteSpaceFull
	}

	m.removeRecord(old)

	r := &record{v4: old.v4, v6: v6, lastHitAt: monotonicNow()}
	m.addRecord(r)
	return r, nil
}

func (m *DynamicMapper) addRecord(r *record) {
	m.forward[r.v4] = r
	m.reverse[r.v6] = r
	m.queue.pushBack(r)
}

func (m *DynamicMapper) removeRecord(r *record) {
	delete(m.forward, r.v4)
	delete(m.reverse, r.v6)
	m.queue.remove(r)
}

func (m *DynamicMapper) registerHit(r *record) {
	r.lastHitAt = monotonicNow()
	m.queue.touch(r)
}

// IterAssignments walks every dynamic assignment in ascending last-hit
// order (oldest, most replaceable, first). Safe to call between mutating
// operations under the single coordinator-level mutex spec §5 requires;
// this is not a live view, each call walks the current queue state.
func (m *DynamicMapper) IterAssignments() iter.Seq[Assignment] {
	return func(yield func(Assignment) bool) {
		now := monotonicNow()

		cont := true
		m.queue.ascending(func(r *record) {
			if !cont {
				return
			}
			elapsed := time.Duration(now - r.lastHitAt)
			remaining := m.minLifetimeAfterLastHit - elapsed
			a := Assignment{V4: r.v4, V6: r.v6}
			if remaining <= 0 {
				a.MayBeReplaced = true
			} else {
				a.RemainingGuaranteedLife = remaining
			}
			if !yield(a) {
				cont = false
			}
		})
	}
}
