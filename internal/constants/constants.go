package constants

// Default configuration constants
const (
	// DefaultIngestPort is the port trip generators connect to
	DefaultIngestPort = 8637

	// DefaultQueryPort is the port the text query interface listens on
	DefaultQueryPort = 8638

	// IngestBufSize is the per-session accumulator for binary trip frames.
	// Frames are tiny (the largest is 24 bytes), so 32 bytes always holds
	// at least one whole frame.
	IngestBufSize = 32

	// QueryBufSize is the per-session accumulator for query lines.
	// Allocated lazily on the first read of a query session.
	QueryBufSize = 2048

	// EpollBatch is how many readiness events one epoll_wait may return
	EpollBatch = 256
)
