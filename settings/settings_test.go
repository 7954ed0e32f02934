package settings

import (
	"testing"
	"time"

	"github.com/ordishs/gocore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setConfig overrides a config key for the duration of the test, putting back
// the previous value, or fallback when the key was unset.
func setConfig(t *testing.T, key, value, fallback string) {
	t.Helper()

	previous, found := gocore.Config().Get(key)
	if !found {
		previous = fallback
	}

	gocore.Config().Set(key, value)

	t.Cleanup(func() {
		gocore.Config().Set(key, previous)
	})
}

func TestNewSettingsDefaults(t *testing.T) {
	tSettings := NewSettings()

	require.NotNil(t, tSettings.ChainCfgParams)
	require.NotNil(t, tSettings.BlockChain.StoreURL)

	assert.Equal(t, "sqlite", tSettings.BlockChain.StoreURL.Scheme)
	assert.Equal(t, 50, tSettings.BlockChain.OrphanCapacity)
	assert.Equal(t, 30*time.Minute, tSettings.BlockChain.OrphanTTL)
	assert.Equal(t, 100*time.Millisecond, tSettings.BlockChain.ReadRetrySleep)
	assert.Equal(t, time.Duration(0), tSettings.BlockChain.ReadTimeout)
	assert.Equal(t, "db-lock", tSettings.BlockChain.LockFile)
	assert.True(t, tSettings.BlockChain.IndexPayments)

	assert.True(t, tSettings.BlockValidation.UseCheckpoints)
	assert.Equal(t, 2*time.Hour, tSettings.BlockValidation.MaxFutureBlockTime)
	assert.Equal(t, uint64(4294967296), tSettings.BlockValidation.MaxBlockSize)
}

func TestNewSettingsNetwork(t *testing.T) {
	setConfig(t, "network", "regtest", "mainnet")

	tSettings := NewSettings()

	assert.Equal(t, "regtest", tSettings.ChainCfgParams.Name)
	// regtest activates genesis rules almost immediately
	assert.Equal(t, uint32(10000), tSettings.ChainCfgParams.GenesisActivationHeight)
}

func TestNewSettingsOverrides(t *testing.T) {
	setConfig(t, "blockchain_store", "memory:///", "sqlite:///blockchain")
	setConfig(t, "blockchain_orphanCapacity", "8", "50")
	setConfig(t, "blockchain_indexPayments", "false", "true")
	setConfig(t, "blockchain_readTimeout", "2s", "0s")

	tSettings := NewSettings()

	assert.Equal(t, "memory", tSettings.BlockChain.StoreURL.Scheme)
	assert.Equal(t, 8, tSettings.BlockChain.OrphanCapacity)
	assert.False(t, tSettings.BlockChain.IndexPayments)
	assert.Equal(t, 2*time.Second, tSettings.BlockChain.ReadTimeout)
}

func TestGetDuration(t *testing.T) {
	setConfig(t, "chaincore_test_duration", "250ms", "")
	setConfig(t, "chaincore_test_bad_duration", "soon", "")

	assert.Equal(t, 250*time.Millisecond, getDuration("chaincore_test_duration", time.Second))
	assert.Equal(t, time.Second, getDuration("chaincore_test_bad_duration", time.Second))
	assert.Equal(t, time.Second, getDuration("chaincore_test_missing_duration", time.Second))
}

func TestGetURLFallsBack(t *testing.T) {
	u := getURL("chaincore_test_missing_url", "leveldb:///chain")
	require.NotNil(t, u)

	assert.Equal(t, "leveldb", u.Scheme)
	assert.Equal(t, "/chain", u.Path)
}
