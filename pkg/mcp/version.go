package mcp

// Version is the JSON-RPC protocol version string.
const Version = "2.0"

// Protocol versions the server understands, oldest first.
const (
	ProtocolVersion20241105 = "2024-11-05"
	ProtocolVersion20250326 = "2025-03-26"
	ProtocolVersion20250618 = "2025-06-18"
	ProtocolVersion20251125 = "2025-11-25"
)

// LatestProtocolVersion is the server's default and highest supported version.
const LatestProtocolVersion = ProtocolVersion20251125

// SupportedProtocolVersions lists every version the server can negotiate.
var SupportedProtocolVersions = []string{
	ProtocolVersion20241105,
	ProtocolVersion20250326,
	ProtocolVersion20250618,
	ProtocolVersion20251125,
}

// NegotiateProtocolVersion selects the version for a session. A client
// that requests a supported version gets it back (the narrower of the
// two, since the server supports all four). Anything unrecognized falls
// back to the server default rather than failing the handshake.
func NegotiateProtocolVersion(clientVersion string) string {
	for _, v := range SupportedProtocolVersions {
		if clientVersion == v {
			return clientVersion
		}
	}
	return LatestProtocolVersion
}
