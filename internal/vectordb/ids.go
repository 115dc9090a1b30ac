// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PointID derives a deterministic Qdrant point id for a chunk of
// content so re-indexing the same item upserts in place instead of
// creating duplicates. The digest covers the project, content type,
// entity id, and a content prefix, matching the manifest's notion of
// "the same chunk" closely enough for idempotent re-runs.
func PointID(projectID int64, contentType, entityID, content string) string {
	prefix := content
	if len(prefix) > 200 {
		prefix = prefix[:200]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%s:%s", projectID, contentType, entityID, prefix)))
	digest := hex.EncodeToString(sum[:])[:32]
	return toUUIDFormat(digest)
}

// toUUIDFormat lays out 32 hex characters in the 8-4-4-4-12 grouping
// Qdrant requires for its Uuid point-id variant.
func toUUIDFormat(hex32 string) string {
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		hex32[0:8], hex32[8:12], hex32[12:16], hex32[16:20], hex32[20:32])
}
