package constants

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// Request constants
const (
	// MaxRequestBodySize is the maximum JSON body accepted by the API (photo lists can be large)
	MaxRequestBodySize = 32 << 20
)
