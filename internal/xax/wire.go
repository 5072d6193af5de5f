// Package xax implements the XAX translation RPC (spec §4.9): a stream
// protocol an external packet translator speaks to ask for one address
// translation per request. spec.md §6 defers the exact bit layout to an
// external library (tundra_xaxlib) that is not present in this codebase's
// reference material, so the frame below is an original fixed-size design
// carrying exactly the fields the protocol needs; see DESIGN.md.
package xax

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// MessageType identifies which of the four translation directions a
// request names, mirroring tundra_xaxlib's MessageType enum.
type MessageType uint8

const (
	MT4to6Main      MessageType = 1
	MT4to6ICMPError MessageType = 2
	MT6to4Main      MessageType = 3
	MT6to4ICMPError MessageType = 4
)

func (mt MessageType) String() string {
	switch mt {
	case MT4to6Main:
		return "4to6_main_packet"
	case MT4to6ICMPError:
		return "4to6_icmp_error_packet"
	case MT6to4Main:
		return "6to4_main_packet"
	case MT6to4ICMPError:
		return "6to4_icmp_error_packet"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(mt))
	}
}

// addressFamily tags whether the 16-byte address slots in a frame hold
// IPv4 (zero-padded) or IPv6 addresses.
type addressFamily uint8

const (
	familyIPv4 addressFamily = 4
	familyIPv6 addressFamily = 6
)

const wireVersion = 1

// Frame layout, fixed size, all integers big-endian:
//
//	offset 0: version (1 byte, must equal wireVersion)
//	offset 1: message type (1 byte)
//	offset 2: address family (1 byte, 4 or 6)
//	offset 3: flags / rcode (1 byte; requests always send 0; responses use
//	          it as described in ResponseMessage)
//	offset 4: cache lifetime, seconds (4 bytes, unsigned; requests send 0)
//	offset 8: source address (16 bytes; IPv4 stored in the first 4 bytes,
//	          remaining 12 zero)
//	offset 24: destination address (16 bytes, same convention)
const wireMessageSize = 40

const (
	offsetVersion = 0
	offsetMsgType = 1
	offsetFamily  = 2
	offsetFlags   = 3
	offsetTTL     = 4
	offsetSource  = 8
	offsetDest    = 24
)

// responseFlagError marks a response as the erroneous variant; when set,
// responseFlagICMP additionally says whether the translator should emit an
// ICMP error back to the original sender.
const (
	responseFlagError = 1 << 0
	responseFlagICMP  = 1 << 1
)

// RequestMessage is one decoded XAX request frame.
type RequestMessage struct {
	MessageType MessageType
	Source      netip.Addr
	Destination netip.Addr
}

// ResponseMessage is an encoded XAX response frame: either successful
// (Error=false, CacheLifetime/Source/Destination populated) or erroneous
// (Error=true, ICMP indicating whether the caller should emit an ICMP
// error back to the original sender).
type ResponseMessage struct {
	Error         bool
	ICMP          bool
	CacheLifetime uint32
	Source        netip.Addr
	Destination   netip.Addr
}

// DecodeRequest parses exactly one wireMessageSize-byte frame.
func DecodeRequest(buf []byte) (*RequestMessage, error) {
	if len(buf) != wireMessageSize {
		return nil, fmt.Errorf("xax: frame must be %d bytes, got %d", wireMessageSize, len(buf))
	}
	if buf[offsetVersion] != wireVersion {
		return nil, fmt.Errorf("xax: unsupported wire version %d", buf[offsetVersion])
	}

	mt := MessageType(buf[offsetMsgType])
	var is6 bool
	switch mt {
	case MT4to6Main, MT4to6ICMPError:
		is6 = false
	case MT6to4Main, MT6to4ICMPError:
		is6 = true
	default:
		return nil, fmt.Errorf("xax: invalid message type %d", buf[offsetMsgType])
	}

	family := addressFamily(buf[offsetFamily])
	if (is6 && family != familyIPv6) || (!is6 && family != familyIPv4) {
		return nil, fmt.Errorf("xax: address family %d inconsistent with message type %s", family, mt)
	}

	src, err := decodeAddr(buf[offsetSource:offsetSource+16], is6)
	if err != nil {
		return nil, fmt.Errorf("xax: source address: %w", err)
	}
	dst, err := decodeAddr(buf[offsetDest:offsetDest+16], is6)
	if err != nil {
		return nil, fmt.Errorf("xax: destination address: %w", err)
	}

	return &RequestMessage{MessageType: mt, Source: src, Destination: dst}, nil
}

// Encode serializes resp as a reply to a request of the given message
// type; the address family of the encoded slots always matches the
// *opposite* protocol version of req (4to6 requests produce v6 addresses
// and vice versa), per the translation direction.
func (resp *ResponseMessage) Encode(req MessageType) []byte {
	buf := make([]byte, wireMessageSize)
	buf[offsetVersion] = wireVersion
	buf[offsetMsgType] = byte(req)

	var is6 bool
	switch req {
	case MT4to6Main, MT4to6ICMPError:
		is6 = true
	case MT6to4Main, MT6to4ICMPError:
		is6 = false
	}
	if is6 {
		buf[offsetFamily] = byte(familyIPv6)
	} else {
		buf[offsetFamily] = byte(familyIPv4)
	}

	var flags byte
	if resp.Error {
		flags |= responseFlagError
		if resp.ICMP {
			flags |= responseFlagICMP
		}
	}
	buf[offsetFlags] = flags

	binary.BigEndian.PutUint32(buf[offsetTTL:offsetTTL+4], resp.CacheLifetime)

	if !resp.Error {
		encodeAddr(buf[offsetSource:offsetSource+16], resp.Source)
		encodeAddr(buf[offsetDest:offsetDest+16], resp.Destination)
	}

	return buf
}

func decodeAddr(slot []byte, is6 bool) (netip.Addr, error) {
	if is6 {
		var b [16]byte
		copy(b[:], slot)
		return netip.AddrFrom16(b), nil
	}

	for _, b := range slot[4:] {
		if b != 0 {
			return netip.Addr{}, fmt.Errorf("ipv4 slot has non-zero padding")
		}
	}
	var b [4]byte
	copy(b[:], slot[:4])
	return netip.AddrFrom4(b), nil
}

func encodeAddr(slot []byte, addr netip.Addr) {
	if addr.Is4() {
		a4 := addr.As4()
		copy(slot[:4], a4[:])
		return
	}
	a16 := addr.As16()
	copy(slot, a16[:])
}

// WireMessageSize is the fixed frame size every XAX message occupies on
// the wire, exported for the client handler's fixed-size reads.
const WireMessageSize = wireMessageSize
