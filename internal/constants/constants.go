// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Upload constants
const (
	// MaxFrameSize is the largest accepted frame upload in bytes
	MaxFrameSize = 20 << 20

	// MultipartMemory is the in-memory part of multipart parsing
	MultipartMemory = 8 << 20
)

// Job constants
const (
	// EventChannelBuffer is the buffer size of an SSE listener channel
	EventChannelBuffer = 100

	// JobRetention is how long finished jobs remain queryable
	JobRetention = 15 * time.Minute

	// JobTimeout bounds a single enroll or verify job
	JobTimeout = 2 * time.Minute
)

// Bulk enrollment constants
const (
	// EnrollDirWorkers is the default number of parallel enrollments in enroll-dir
	EnrollDirWorkers = 4
)
