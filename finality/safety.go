// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package finality

import (
	"fmt"
	"os"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/chain"
	"github.com/luxfi/spring/codec"
)

// LastVote is the most recent vote a local finalizer has cast, the
// minimum state needed to uphold the no-regression safety rule across
// restarts.
type LastVote struct {
	BlockNum  chain.BlockNum `json:"blockNum"`
	Timestamp int64          `json:"timestamp"`
}

// Lock is the finalizer's current lock: it will not vote strongly for
// anything that conflicts with the locked block.
type Lock struct {
	BlockID  chain.BlockID  `json:"blockId"`
	BlockNum chain.BlockNum `json:"blockNum"`
}

// SafetyRecord is one local finalizer's persisted safety state.
type SafetyRecord struct {
	NodeID   ids.NodeID `json:"nodeId"`
	LastVote LastVote   `json:"lastVote"`
	Lock     Lock       `json:"lock"`
}

// SafetyFile persists SafetyRecord entries to disk, fsynced on every
// vote so a crash can never replay a vote that regresses LastVote or
// Lock. It uses codec.JSONCodec for a human-inspectable on-disk format,
// keeping the network wire format and persisted operator state on
// separate codecs.
type SafetyFile struct {
	path string
}

// NewSafetyFile opens (without yet reading) the safety file at path.
func NewSafetyFile(path string) *SafetyFile {
	return &SafetyFile{path: path}
}

// Load reads all persisted safety records, keyed by node id.
func (f *SafetyFile) Load() (map[ids.NodeID]SafetyRecord, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[ids.NodeID]SafetyRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finality: read safety file: %w", err)
	}

	var records []SafetyRecord
	if _, err := codec.Codec.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("finality: decode safety file: %w", err)
	}

	out := make(map[ids.NodeID]SafetyRecord, len(records))
	for _, r := range records {
		out[r.NodeID] = r
	}
	return out, nil
}

// Save validates the no-regression invariant for every record against
// its previously persisted value, then atomically rewrites the file
// and fsyncs it.
func (f *SafetyFile) Save(records map[ids.NodeID]SafetyRecord) error {
	prior, err := f.Load()
	if err != nil {
		return err
	}
	for id, rec := range records {
		if before, ok := prior[id]; ok {
			if rec.LastVote.Timestamp < before.LastVote.Timestamp && rec.Lock.BlockNum < before.Lock.BlockNum {
				return fmt.Errorf("finality: safety regression for %s: vote/lock both older than persisted state", id)
			}
		}
	}

	flat := make([]SafetyRecord, 0, len(records))
	for _, r := range records {
		flat = append(flat, r)
	}

	data, err := codec.Codec.Marshal(codec.CurrentVersion, flat)
	if err != nil {
		return fmt.Errorf("finality: encode safety file: %w", err)
	}

	tmp := f.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("finality: open safety file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("finality: write safety file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("finality: fsync safety file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("finality: close safety file: %w", err)
	}
	return os.Rename(tmp, f.path)
}
