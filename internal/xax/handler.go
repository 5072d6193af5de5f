package xax

import (
	"net/netip"
	"time"

	"github.com/vitlabuda/get4for6-go/internal/addrmap"
	"github.com/vitlabuda/get4for6-go/internal/applog"
	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

// Handler dispatches decoded XAX requests against the address-mapping
// engine. Grounded on _TundraXAXRequestHandler.handle_request's
// translate/classify/respond structure.
type Handler struct {
	ClientMapper     *addrmap.ClientMapper
	SubstituteMapper *addrmap.SubstituteMapper
}

// Handle performs one request's translation and builds the response frame
// content, never failing itself — every mapper error becomes an erroneous
// ResponseMessage.
func (h *Handler) Handle(req *RequestMessage) *ResponseMessage {
	src, dst, lifetime, err := h.translate(req)
	if err == nil {
		applog.Debugf(applog.FacilityXAX, "translation success: %s (%s, %s) -> (%s, %s)",
			req.MessageType, req.Source, req.Destination, src, dst)
		return &ResponseMessage{
			CacheLifetime: uint32(lifetime.Seconds()),
			Source:        src,
			Destination:   dst,
		}
	}

	if xlaterr.IsAuthorization(err) {
		applog.Debugf(applog.FacilityXAX, "translation security error: %s (%s, %s) -> %s",
			req.MessageType, req.Source, req.Destination, err)
		return &ResponseMessage{Error: true, ICMP: false}
	}

	if xlaterr.IsResource(err) {
		isMainPacket := req.MessageType == MT4to6Main || req.MessageType == MT6to4Main
		applog.Debugf(applog.FacilityXAX, "translation server error: %s (%s, %s) -> %s",
			req.MessageType, req.Source, req.Destination, err)
		return &ResponseMessage{Error: true, ICMP: isMainPacket}
	}

	// Any other error is a programming fault: every error the mapper layer
	// can return is either an AuthorizationError or a ResourceError.
	xlaterr.Crash(xlaterr.NewFault("xax: unclassified translation error: %s", err))
	panic("unreachable")
}

// translate implements spec §4.9's translation-rules table.
func (h *Handler) translate(req *RequestMessage) (src, dst netip.Addr, lifetime time.Duration, err error) {
	switch req.MessageType {
	case MT4to6Main:
		return h.translate4to6Main(req.Source, req.Destination)
	case MT4to6ICMPError:
		return h.translate4to6ICMPError(req.Source, req.Destination)
	case MT6to4Main:
		return h.translate6to4Main(req.Source, req.Destination)
	case MT6to4ICMPError:
		return h.translate6to4ICMPError(req.Source, req.Destination)
	default:
		xlaterr.Crash(xlaterr.NewFault("xax: invalid message type %s", req.MessageType))
		panic("unreachable")
	}
}

func (h *Handler) translate4to6Main(oldSrc, oldDst netip.Addr) (netip.Addr, netip.Addr, time.Duration, error) {
	newSrc, err := h.ClientMapper.Map4to6(oldSrc)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, 0, err
	}
	newDst, lifetime, err := h.SubstituteMapper.Map4to6(oldDst, oldSrc)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, 0, err
	}
	return newSrc, newDst, lifetime, nil
}

func (h *Handler) translate4to6ICMPError(oldSrc, oldDst netip.Addr) (netip.Addr, netip.Addr, time.Duration, error) {
	newDst, err := h.ClientMapper.Map4to6(oldDst)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, 0, err
	}
	newSrc, lifetime, err := h.SubstituteMapper.Map4to6(oldSrc, oldDst)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, 0, err
	}
	return newSrc, newDst, lifetime, nil
}

func (h *Handler) translate6to4Main(oldSrc, oldDst netip.Addr) (netip.Addr, netip.Addr, time.Duration, error) {
	newDst, err := h.ClientMapper.Map6to4(oldDst)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, 0, err
	}
	newSrc, lifetime, err := h.SubstituteMapper.Map6to4(oldSrc, newDst, true)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, 0, err
	}
	return newSrc, newDst, lifetime, nil
}

func (h *Handler) translate6to4ICMPError(oldSrc, oldDst netip.Addr) (netip.Addr, netip.Addr, time.Duration, error) {
	newSrc, err := h.ClientMapper.Map6to4(oldSrc)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, 0, err
	}
	newDst, lifetime, err := h.SubstituteMapper.Map6to4(oldDst, newSrc, true)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, 0, err
	}
	return newSrc, newDst, lifetime, nil
}
