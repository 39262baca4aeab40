// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"time"

	"github.com/luxfi/spring/utils/constants"
)

// ReadMode gates how the controller exposes state for RPC reads.
type ReadMode int

const (
	ReadHead ReadMode = iota
	ReadSpeculative
	ReadIrreversible
)

// ValidationMode trades validation thoroughness for replay speed.
type ValidationMode int

const (
	ValidationFull ValidationMode = iota
	ValidationLight
)

// AllowedConnection mirrors connmgr.AllowedConnection without importing
// it, so config stays leaf-level in the dependency graph.
type AllowedConnection string

const (
	AllowedAny       AllowedConnection = "any"
	AllowedProducers AllowedConnection = "producers"
	AllowedSpecified AllowedConnection = "specified"
	AllowedNone      AllowedConnection = "none"
)

// NodeConfig is the full CLI/operational surface: p2p transport knobs,
// controller thread-pool and storage-path knobs, and sync tuning.
type NodeConfig struct {
	// NetworkID selects which network's genesis and peer set a node
	// joins; see utils/constants for the well-known IDs.
	NetworkID uint32 `json:"networkId"`

	// p2p
	P2PListenEndpoint    string            `json:"p2pListenEndpoint"`
	P2PServerAddress     string            `json:"p2pServerAddress"`
	P2PPeerAddresses     []string          `json:"p2pPeerAddresses"`
	P2PMaxNodesPerHost   int               `json:"p2pMaxNodesPerHost"`
	P2PAcceptTrx         bool              `json:"p2pAcceptTransactions"`
	P2PDisableBlockNack  bool              `json:"p2pDisableBlockNack"`
	P2PAutoBPPeer        bool              `json:"p2pAutoBpPeer"`
	P2PBPGossipEndpoint  string            `json:"p2pBpGossipEndpoint"`
	AgentName            string            `json:"agentName"`
	AllowedConnection    AllowedConnection `json:"allowedConnection"`
	PeerKey              string            `json:"peerKey"`
	PeerPrivateKey       string            `json:"peerPrivateKey"`
	MaxClients           int               `json:"maxClients"`
	ConnectionCleanup    time.Duration     `json:"connectionCleanupPeriod"`
	DedupCacheExpire     time.Duration     `json:"dedupCacheExpireTime"`
	NetThreads           int               `json:"netThreads"`
	SyncFetchSpan        uint32            `json:"syncFetchSpan"`
	SyncPeerLimit        int               `json:"syncPeerLimit"`
	KeepaliveInterval    time.Duration     `json:"keepaliveInterval"`

	// controller
	ChainThreadPoolSize   int            `json:"chainThreadPoolSize"`
	VoteThreadPoolSize    int            `json:"voteThreadPoolSize"`
	StateDir              string         `json:"stateDir"`
	BlocksDir             string         `json:"blocksDir"`
	FinalizersDir         string         `json:"finalizersDir"`
	ReadMode              ReadMode       `json:"readMode"`
	ValidationMode        ValidationMode `json:"validationMode"`
	TerminateAtBlock      uint32         `json:"terminateAtBlock"`
	ForceAllChecks        bool           `json:"forceAllChecks"`
	DisableReplayOpts     bool           `json:"disableReplayOpts"`
	IntegrityHashOnStart  bool           `json:"integrityHashOnStart"`
	IntegrityHashOnStop   bool           `json:"integrityHashOnStop"`
	ProfileAccounts       bool           `json:"profileAccounts"`
}

// DefaultNodeConfig returns the operational defaults a freshly
// initialized node runs with.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		NetworkID:          constants.MainnetID,
		P2PMaxNodesPerHost: 1,
		P2PAcceptTrx:       true,
		AgentName:          "spring",
		AllowedConnection:  AllowedAny,
		MaxClients:         25,
		ConnectionCleanup:  30 * time.Second,
		DedupCacheExpire:   10 * time.Minute,
		NetThreads:         4,
		SyncFetchSpan:      1000,
		SyncPeerLimit:      3,
		KeepaliveInterval:  10 * time.Second,

		ChainThreadPoolSize: 4,
		VoteThreadPoolSize:  2,
		ReadMode:            ReadHead,
		ValidationMode:      ValidationFull,
	}
}

// NodeConfigBuilder assembles a NodeConfig through chained With*
// calls, validating each option as it is applied.
type NodeConfigBuilder struct {
	cfg NodeConfig
	err error
}

// NewNodeConfigBuilder starts from DefaultNodeConfig.
func NewNodeConfigBuilder() *NodeConfigBuilder {
	return &NodeConfigBuilder{cfg: DefaultNodeConfig()}
}

func (b *NodeConfigBuilder) WithNetworkID(networkID uint32) *NodeConfigBuilder {
	b.cfg.NetworkID = networkID
	return b
}

func (b *NodeConfigBuilder) WithP2PListenEndpoint(endpoint string) *NodeConfigBuilder {
	b.cfg.P2PListenEndpoint = endpoint
	return b
}

func (b *NodeConfigBuilder) WithPeerAddresses(addrs ...string) *NodeConfigBuilder {
	b.cfg.P2PPeerAddresses = append(b.cfg.P2PPeerAddresses, addrs...)
	return b
}

func (b *NodeConfigBuilder) WithMaxClients(n int) *NodeConfigBuilder {
	if n < 1 {
		b.err = fmt.Errorf("config: max-clients must be >= 1, got %d", n)
		return b
	}
	b.cfg.MaxClients = n
	return b
}

func (b *NodeConfigBuilder) WithSyncFetchSpan(span uint32) *NodeConfigBuilder {
	if span == 0 {
		b.err = fmt.Errorf("config: sync-fetch-span must be > 0")
		return b
	}
	b.cfg.SyncFetchSpan = span
	return b
}

func (b *NodeConfigBuilder) WithReadMode(mode ReadMode) *NodeConfigBuilder {
	b.cfg.ReadMode = mode
	return b
}

func (b *NodeConfigBuilder) WithValidationMode(mode ValidationMode) *NodeConfigBuilder {
	b.cfg.ValidationMode = mode
	return b
}

// Build validates and returns the assembled NodeConfig.
func (b *NodeConfigBuilder) Build() (NodeConfig, error) {
	if b.err != nil {
		return NodeConfig{}, b.err
	}
	if b.cfg.ChainThreadPoolSize < 1 {
		return NodeConfig{}, fmt.Errorf("config: chain-thread-pool-size must be >= 1")
	}
	if b.cfg.SyncPeerLimit < 1 {
		return NodeConfig{}, fmt.Errorf("config: sync-peer-limit must be >= 1")
	}
	return b.cfg, nil
}
