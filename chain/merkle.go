// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"crypto/sha256"

	"github.com/luxfi/ids"
)

// ComputeMerkleRoot folds digests into a single root: each digest is
// normalized to 32 bytes via SHA-256, then combined pairwise up a
// binary tree, duplicating the last element of any odd level so every
// combine step has a sibling.
func ComputeMerkleRoot(digests [][]byte) ids.ID {
	if len(digests) == 0 {
		return ids.ID{}
	}
	level := make([]ids.ID, len(digests))
	for i, d := range digests {
		level[i] = ids.ID(sha256.Sum256(d))
	}
	if len(level) == 1 {
		return level[0]
	}
	if len(level)%2 != 0 {
		level = append(level, level[len(level)-1])
	}
	for len(level) > 1 {
		next := make([]ids.ID, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			var combined [64]byte
			copy(combined[:32], level[i][:])
			copy(combined[32:], level[i+1][:])
			next[i/2] = ids.ID(sha256.Sum256(combined[:]))
		}
		level = next
		if len(level) > 1 && len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
	}
	return level[0]
}
