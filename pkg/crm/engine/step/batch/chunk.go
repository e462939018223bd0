package batch

// ChunkState is the lifecycle state of one chunk submission.
type ChunkState int

const (
	ChunkPending ChunkState = iota
	ChunkSent
	ChunkSucceeded
	ChunkRateLimited
	ChunkServerError
	ChunkNetworkError
	ChunkFailed
)

// String returns the lowercase state name used in logs and metric labels.
func (s ChunkState) String() string {
	switch s {
	case ChunkPending:
		return "pending"
	case ChunkSent:
		return "sent"
	case ChunkSucceeded:
		return "succeeded"
	case ChunkRateLimited:
		return "rate_limited"
	case ChunkServerError:
		return "server_error"
	case ChunkNetworkError:
		return "network_error"
	case ChunkFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can follow s.
func (s ChunkState) Terminal() bool {
	return s == ChunkSucceeded || s == ChunkFailed
}

// split partitions items into consecutive groups of at most size elements.
func split[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size < 1 {
		size = len(items)
	}
	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		groups = append(groups, items[start:end])
	}
	return groups
}
