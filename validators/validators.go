// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validators tracks the weighted membership of a finalizer or
// proposer policy. It is intentionally ignorant of BLS/ECDSA: public
// keys are carried as opaque bytes and verified by an injected
// finality.Verifier, keeping cryptographic primitives an external
// collaborator.
package validators

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/utils/sampler"
)

// Validator is a single member of a weighted policy.
type Validator struct {
	NodeID    ids.NodeID
	PublicKey []byte
	Weight    uint64
}

// Set is an immutable snapshot of a policy's membership, as returned by
// Manager.GetValidators for one generation.
type Set interface {
	Has(ids.NodeID) bool
	Len() int
	List() []Validator
	TotalWeight() uint64
	GetWeight(ids.NodeID) uint64
	Sample(size int) ([]ids.NodeID, error)
}

// Manager owns the live, mutable policy membership for every chain this
// node tracks (keyed by chain/policy id so Legacy producer schedules and
// Savanna finalizer policies can coexist during the migration window).
type Manager interface {
	GetValidators(policyID ids.ID) (Set, error)
	GetWeight(policyID ids.ID, nodeID ids.NodeID) uint64
	TotalWeight(policyID ids.ID) (uint64, error)
	AddStaker(policyID ids.ID, nodeID ids.NodeID, pk []byte, weight uint64) error
	RemoveWeight(policyID ids.ID, nodeID ids.NodeID, weight uint64) error
	RegisterSetCallbackListener(policyID ids.ID, listener SetCallbackListener)
}

// SetCallbackListener observes membership changes in a single policy's
// set — consumed by connmgr's auto-BP-peering dial/undial logic.
type SetCallbackListener interface {
	OnValidatorAdded(nodeID ids.NodeID, weight uint64)
	OnValidatorRemoved(nodeID ids.NodeID, weight uint64)
	OnValidatorWeightChanged(nodeID ids.NodeID, oldWeight, newWeight uint64)
}

// Connector is notified as peers corresponding to policy members connect
// and disconnect.
type Connector interface {
	Connected(ctx context.Context, nodeID ids.NodeID) error
	Disconnected(ctx context.Context, nodeID ids.NodeID) error
}

type manager struct {
	mu           sync.RWMutex
	byPolicy     map[ids.ID]map[ids.NodeID]*Validator
	setCallbacks map[ids.ID][]SetCallbackListener
}

// NewManager creates an empty, in-memory validator manager.
func NewManager() Manager {
	return &manager{
		byPolicy:     make(map[ids.ID]map[ids.NodeID]*Validator),
		setCallbacks: make(map[ids.ID][]SetCallbackListener),
	}
}

func (m *manager) AddStaker(policyID ids.ID, nodeID ids.NodeID, pk []byte, weight uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.byPolicy[policyID]
	if members == nil {
		members = make(map[ids.NodeID]*Validator)
		m.byPolicy[policyID] = members
	}
	members[nodeID] = &Validator{NodeID: nodeID, PublicKey: pk, Weight: weight}

	for _, l := range m.setCallbacks[policyID] {
		l.OnValidatorAdded(nodeID, weight)
	}
	return nil
}

func (m *manager) RemoveWeight(policyID ids.ID, nodeID ids.NodeID, weight uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.byPolicy[policyID]
	if members == nil {
		return fmt.Errorf("policy %s not found", policyID)
	}
	v, ok := members[nodeID]
	if !ok {
		return fmt.Errorf("validator %s not found in policy %s", nodeID, policyID)
	}
	if v.Weight < weight {
		return fmt.Errorf("validator %s weight %d less than weight to remove %d", nodeID, v.Weight, weight)
	}
	oldWeight := v.Weight
	v.Weight -= weight
	if v.Weight == 0 {
		delete(members, nodeID)
		if len(members) == 0 {
			delete(m.byPolicy, policyID)
		}
		for _, l := range m.setCallbacks[policyID] {
			l.OnValidatorRemoved(nodeID, oldWeight)
		}
		return nil
	}
	for _, l := range m.setCallbacks[policyID] {
		l.OnValidatorWeightChanged(nodeID, oldWeight, v.Weight)
	}
	return nil
}

func (m *manager) GetValidators(policyID ids.ID) (Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.byPolicy[policyID]
	snapshot := make(map[ids.NodeID]Validator, len(members))
	for nodeID, v := range members {
		snapshot[nodeID] = *v
	}
	return &set{members: snapshot}, nil
}

func (m *manager) GetWeight(policyID ids.ID, nodeID ids.NodeID) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.byPolicy[policyID][nodeID]; ok {
		return v.Weight
	}
	return 0
}

func (m *manager) TotalWeight(policyID ids.ID) (uint64, error) {
	s, err := m.GetValidators(policyID)
	if err != nil {
		return 0, err
	}
	return s.TotalWeight(), nil
}

func (m *manager) RegisterSetCallbackListener(policyID ids.ID, listener SetCallbackListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCallbacks[policyID] = append(m.setCallbacks[policyID], listener)
}

type set struct {
	members map[ids.NodeID]Validator
}

func (s *set) Has(nodeID ids.NodeID) bool { _, ok := s.members[nodeID]; return ok }
func (s *set) Len() int                   { return len(s.members) }

func (s *set) List() []Validator {
	out := make([]Validator, 0, len(s.members))
	for _, v := range s.members {
		out = append(out, v)
	}
	return out
}

func (s *set) TotalWeight() uint64 {
	var total uint64
	for _, v := range s.members {
		total += v.Weight
	}
	return total
}

func (s *set) GetWeight(nodeID ids.NodeID) uint64 {
	return s.members[nodeID].Weight
}

// Sample draws size finalizers weighted by stake, using a
// weighted-without-replacement sampler so heavier validators are
// proportionally more likely to be chosen as sync/gossip peers.
func (s *set) Sample(size int) ([]ids.NodeID, error) {
	if size <= 0 {
		return nil, nil
	}

	ordered := make([]ids.NodeID, 0, len(s.members))
	weights := make([]uint64, 0, len(s.members))
	for nodeID, v := range s.members {
		ordered = append(ordered, nodeID)
		weights = append(weights, v.Weight)
	}

	w := sampler.NewWeightedWithoutReplacement()
	if err := w.Initialize(weights); err != nil {
		return nil, fmt.Errorf("validators: sample: %w", err)
	}
	indices, ok := w.Sample(size)
	if !ok {
		return nil, fmt.Errorf("validators: sample: insufficient weight for size %d", size)
	}

	out := make([]ids.NodeID, len(indices))
	for i, idx := range indices {
		out[i] = ordered[idx]
	}
	return out, nil
}
