package settings

import (
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

func NewSettings() *Settings {
	params, err := chaincfg.GetChainParams(getString("network", "mainnet"))
	if err != nil {
		panic(err)
	}

	return &Settings{
		ClientName:     getString("clientName", "chaincore"),
		DataFolder:     getString("dataFolder", "data"),
		LogLevel:       getString("logLevel", "INFO"),
		LoggerType:     getString("logger", "zerolog"),
		ChainCfgParams: params,
		Dispatcher: DispatcherSettings{
			Workers:    getInt("dispatcher_workers", 0),
			MaxPending: int64(getInt("dispatcher_maxPending", 0)),
		},
		BlockValidation: BlockValidationSettings{
			UseCheckpoints: getBool("blockvalidation_useCheckpoints", true),
			Concurrency:    getInt("blockvalidation_concurrency", 0),
			// 4GB
			MaxBlockSize:       uint64(getInt("excessiveblocksize", 4294967296)),
			MaxFutureBlockTime: getDuration("blockvalidation_maxFutureBlockTime", 2*time.Hour),
			FastSigops:         getBool("blockvalidation_fastSigops", false),
		},
		BlockChain: BlockChainSettings{
			StoreURL:            getURL("blockchain_store", "sqlite:///blockchain"),
			OrphanCapacity:      getInt("blockchain_orphanCapacity", 50),
			OrphanTTL:           getDuration("blockchain_orphanTTL", 30*time.Minute),
			ReadRetrySleep:      getDuration("blockchain_readRetrySleep", 100*time.Millisecond),
			ReadTimeout:         getDuration("blockchain_readTimeout", 0),
			LockFile:            getString("blockchain_lockFile", "db-lock"),
			ReorganizationLimit: uint32(getInt("blockchain_reorganizationLimit", 0)), //nolint:gosec // config value
			IndexPayments:       getBool("blockchain_indexPayments", true),
		},
		Metrics: MetricsSettings{
			Enabled:       getBool("metrics_enabled", true),
			ListenAddress: getString("metrics_listenAddress", ":9091"),
		},
	}
}
