// Package test holds fixtures shared by the package tests.
package test

import (
	"net/url"
	"testing"
	"time"

	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/settings"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/stretchr/testify/require"
)

// The first three blocks after the mainnet genesis block.
const (
	MainnetBlock1Hex = "010000006fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c68d6190000000000982051fd1e4ba744bbbe680e1fee14677ba1a3c3540bf7b1cdb606e857233e0e61bc6649ffff001d01e362990101000000010000000000000000000000000000000000000000000000000000000000000000ffffffff0704ffff001d0104ffffffff0100f2052a0100000043410496b538e853519c726a2c91e61ec11600ae1390813a627c66fb8be7947be63c52da7589379515d4e0a604f8141781e62294721166bf621e73a82cbf2342c858eeac00000000"
	MainnetBlock2Hex = "010000004860eb18bf1b1620e37e9490fc8a427514416fd75159ab86688e9a8300000000d5fdcc541e25de1c7a5addedf24858b8bb665c9f36ef744ee42c316022c90f9bb0bc6649ffff001d08d2bd610101000000010000000000000000000000000000000000000000000000000000000000000000ffffffff0704ffff001d010bffffffff0100f2052a010000004341047211a824f55b505228e4c3d5194c1fcfaa15a456abdf37f9b9d97a4040afc073dee6c89064984f03385237d92167c13e236446b417ab79a0fcae412ae3316b77ac00000000"
	MainnetBlock3Hex = "01000000bddd99ccfda39da1b108ce1a5d70038d0a967bacb68b6b63065f626a0000000044f672226090d85db9a9f2fbfe5f0f9609b387af7be5b7fbb7a1767c831c9e995dbe6649ffff001d05e0ed6d0101000000010000000000000000000000000000000000000000000000000000000000000000ffffffff0704ffff001d010effffffff0100f2052a0100000043410494b9d3e76c5b1629ecf97fff95d7a4bbdac87cc26099ada28066c6ff1eb9191223cd897194a08d0c2726c5747f1db49e8cf90e75dc3e3550ae9b30086f3cd5aaac00000000"
)

// CreateBaseTestSettings returns regtest settings with an in memory store and
// a single block coinbase maturity.
func CreateBaseTestSettings(t *testing.T) *settings.Settings {
	t.Helper()

	params := chaincfg.RegressionNetParams

	tSettings := settings.NewSettings()
	tSettings.ChainCfgParams = &params
	tSettings.ChainCfgParams.CoinbaseMaturity = 1
	tSettings.DataFolder = t.TempDir()
	tSettings.BlockChain.StoreURL = MustParseURL(t, "memory:///")
	tSettings.BlockChain.ReadRetrySleep = time.Millisecond
	tSettings.Dispatcher.Workers = 4

	return tSettings
}

// CreateMainnetTestSettings is CreateBaseTestSettings on mainnet parameters.
func CreateMainnetTestSettings(t *testing.T) *settings.Settings {
	t.Helper()

	params := chaincfg.MainNetParams

	tSettings := CreateBaseTestSettings(t)
	tSettings.ChainCfgParams = &params

	return tSettings
}

// MainnetBlocks parses mainnet blocks 1 to 3.
func MainnetBlocks(t *testing.T) []*model.Block {
	t.Helper()

	blocks := make([]*model.Block, 0, 3)

	for _, blockHex := range []string{MainnetBlock1Hex, MainnetBlock2Hex, MainnetBlock3Hex} {
		block, err := model.NewBlockFromString(blockHex)
		require.NoError(t, err)

		blocks = append(blocks, block)
	}

	return blocks
}

func MustParseURL(t *testing.T, rawURL string) *url.URL {
	t.Helper()

	u, err := url.Parse(rawURL)
	require.NoError(t, err)

	return u
}
