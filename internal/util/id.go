package util

import "github.com/google/uuid"

// NewTag returns a fresh stream tag. Tags are opaque and unique per stream;
// they scope engine results to the stream that requested them.
func NewTag() string { return uuid.NewString() }
