// Package saq implements the Simple Address Query service (spec §4.10): a
// stateless one-shot UDP translator with binary and plaintext variants.
// Grounded on original_source/src/get4for6/modules/m_saq/_SAQQueryHandler.py.
package saq

import (
	"net/netip"
	"strings"

	"github.com/vitlabuda/get4for6-go/internal/addrmap"
	"github.com/vitlabuda/get4for6-go/internal/applog"
)

// Handler performs one-shot address translation for already-authorized
// clients. Unlike xax and dnsproto, SAQ never reports why a query failed:
// any parse or translation error is a silent drop.
type Handler struct {
	SubstituteMapper *addrmap.SubstituteMapper
}

// HandleBinary translates a raw 4- or 16-octet address. It returns nil
// (meaning: drop, send nothing back) on any parse or translation failure.
func (h *Handler) HandleBinary(data []byte, validClientV4 netip.Addr) []byte {
	addr, ok := parseBinaryAddr(data)
	if !ok {
		applog.Debugf(applog.FacilitySAQ, "binary saq query with invalid address length %d", len(data))
		return nil
	}

	translated, ok := h.translate(addr, validClientV4)
	if !ok {
		return nil
	}

	return translated.AsSlice()
}

// HandlePlaintext translates an ASCII IP literal, optionally
// whitespace-padded. It returns nil on any parse or translation failure.
func (h *Handler) HandlePlaintext(data []byte, validClientV4 netip.Addr) []byte {
	addr, err := netip.ParseAddr(strings.TrimSpace(string(data)))
	if err != nil {
		applog.Debugf(applog.FacilitySAQ, "plaintext saq query %q is not a valid ip literal", data)
		return nil
	}

	translated, ok := h.translate(addr, validClientV4)
	if !ok {
		return nil
	}

	return []byte(translated.String())
}

func parseBinaryAddr(data []byte) (netip.Addr, bool) {
	switch len(data) {
	case 4:
		return netip.AddrFrom4([4]byte(data)), true
	case 16:
		return netip.AddrFrom16([16]byte(data)), true
	default:
		return netip.Addr{}, false
	}
}

// translate routes a parsed address to the appropriate translation
// direction, per spec §4.10: v4 -> substitute_4to6, v6 ->
// substitute_6to4(creation_allowed=true).
func (h *Handler) translate(addr netip.Addr, validClientV4 netip.Addr) (netip.Addr, bool) {
	if addr.Is4() {
		v6, _, err := h.SubstituteMapper.Map4to6(addr, validClientV4)
		if err != nil {
			applog.Debugf(applog.FacilitySAQ, "saq 4to6 translation of %s failed: %s", addr, err)
			return netip.Addr{}, false
		}
		return v6, true
	}

	v4, _, err := h.SubstituteMapper.Map6to4(addr, validClientV4, true)
	if err != nil {
		applog.Debugf(applog.FacilitySAQ, "saq 6to4 translation of %s failed: %s", addr, err)
		return netip.Addr{}, false
	}
	return v4, true
}
