// Package recorder provides usage accounting backends.
package recorder

import "github.com/user/stickersmith/internal/types"

// Compile-time interface compliance checks.
var _ types.Recorder = (*FileRecorder)(nil)
var _ types.Recorder = (*RedisRecorder)(nil)
var _ types.Recorder = (*FailOpen)(nil)
