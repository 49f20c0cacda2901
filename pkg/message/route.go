package message

// routePair maps a field of the inbound header to the field it becomes in
// the reply.
type routePair struct {
	from, to Tag
}

var (
	identityRoutes = []routePair{
		{TagSenderCompID, TagTargetCompID},
		{TagSenderSubID, TagTargetSubID},
		{TagSenderLocationID, TagTargetLocationID},
		{TagTargetCompID, TagSenderCompID},
		{TagTargetSubID, TagSenderSubID},
		{TagTargetLocationID, TagSenderLocationID},
	}
	onBehalfRoutes = []routePair{
		{TagOnBehalfOfCompID, TagDeliverToCompID},
		{TagOnBehalfOfSubID, TagDeliverToSubID},
		{TagDeliverToCompID, TagOnBehalfOfCompID},
		{TagDeliverToSubID, TagOnBehalfOfSubID},
	}
	locationRoutes = []routePair{
		{TagOnBehalfOfLocationID, TagDeliverToLocationID},
		{TagDeliverToLocationID, TagOnBehalfOfLocationID},
	}
)

// locationRoutingVersion is the first BeginString carrying OnBehalfOf and
// DeliverTo location fields.
const locationRoutingVersion = BeginStringFIX41

// ReverseRoute fills m's header with the routing of a reply to a message
// whose header is h. Every routing field is cleared first and then set only
// from non-empty source values.
func (m *Message) ReverseRoute(h *Header) {
	m.Header.Remove(TagBeginString)
	for _, r := range identityRoutes {
		m.Header.Remove(r.to)
	}

	if beginString, ok := h.Get(TagBeginString); ok {
		if beginString != "" {
			m.Header.SetField(TagBeginString, beginString)
		}
		for _, r := range locationRoutes {
			m.Header.Remove(r.to)
		}
		if beginString >= locationRoutingVersion {
			copyRoutes(&m.Header, h, locationRoutes)
		}
	}
	copyRoutes(&m.Header, h, identityRoutes)

	for _, r := range onBehalfRoutes {
		m.Header.Remove(r.to)
	}
	copyRoutes(&m.Header, h, onBehalfRoutes)
}

func copyRoutes(dst, src *Header, routes []routePair) {
	for _, r := range routes {
		if v, ok := src.Get(r.from); ok && v != "" {
			dst.SetField(r.to, v)
		}
	}
}
