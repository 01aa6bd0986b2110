package consts

// set by -ldflags at build time
var (
	Version   = "v0.1.0"
	BuildTime = ""
	GitTag    = ""
)

const (
	// DefaultPort is the port the embedded client connects to
	DefaultPort = 3333
	// DefaultBodyLength keeps header+body below a 1500 byte MTU
	DefaultBodyLength = 1380
	// DefaultLogCapacity is the number of captured packets kept for lookups
	DefaultLogCapacity = 100
	// MaxSegmentPayload is what fits one IPv4 datagram after the IP and TCP headers
	MaxSegmentPayload = 65535 - 20 - 20
)
