// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/spring/utils/constants"
)

func TestNodeConfigBuilderDefaults(t *testing.T) {
	cfg, err := NewNodeConfigBuilder().Build()
	require.NoError(t, err)
	require.Equal(t, DefaultNodeConfig(), cfg)
}

func TestNodeConfigBuilderRejectsZeroMaxClients(t *testing.T) {
	_, err := NewNodeConfigBuilder().WithMaxClients(0).Build()
	require.Error(t, err)
}

func TestNodeConfigBuilderRejectsZeroFetchSpan(t *testing.T) {
	_, err := NewNodeConfigBuilder().WithSyncFetchSpan(0).Build()
	require.Error(t, err)
}

func TestNodeConfigBuilderDefaultsToMainnet(t *testing.T) {
	cfg, err := NewNodeConfigBuilder().Build()
	require.NoError(t, err)
	require.Equal(t, constants.MainnetID, cfg.NetworkID)
}

func TestNodeConfigBuilderAppliesNetworkID(t *testing.T) {
	cfg, err := NewNodeConfigBuilder().WithNetworkID(constants.TestnetID).Build()
	require.NoError(t, err)
	require.Equal(t, constants.TestnetID, cfg.NetworkID)
}

func TestNodeConfigBuilderAppliesOverrides(t *testing.T) {
	cfg, err := NewNodeConfigBuilder().
		WithP2PListenEndpoint("0.0.0.0:9876").
		WithPeerAddresses("peer-a:9876", "peer-b:9876").
		WithReadMode(ReadIrreversible).
		WithValidationMode(ValidationLight).
		Build()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9876", cfg.P2PListenEndpoint)
	require.Equal(t, []string{"peer-a:9876", "peer-b:9876"}, cfg.P2PPeerAddresses)
	require.Equal(t, ReadIrreversible, cfg.ReadMode)
	require.Equal(t, ValidationLight, cfg.ValidationMode)
}
