package settings

import (
	"net/url"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

type DispatcherSettings struct {
	// Workers is the size of the parallel pool; 0 means runtime.NumCPU().
	Workers int
	// MaxPending is the backlog above which the service reports itself not
	// ready; 0 disables the limit.
	MaxPending int64
}

type BlockValidationSettings struct {
	UseCheckpoints bool
	// Concurrency overrides the bucket count hint; 0 defers to the dispatcher.
	Concurrency int
	// MaxBlockSize is the largest accepted serialized block in bytes.
	MaxBlockSize uint64
	// MaxFutureBlockTime bounds how far ahead of local time a header may be.
	MaxFutureBlockTime time.Duration
	// FastSigops enables the weighted sigop accounting of ForkBIP141.
	FastSigops bool
}

type BlockChainSettings struct {
	StoreURL       *url.URL
	OrphanCapacity int
	OrphanTTL      time.Duration
	// ReadRetrySleep is the backoff between read attempts while a write is in progress.
	ReadRetrySleep time.Duration
	// ReadTimeout bounds the total wait of a read; 0 retries forever.
	ReadTimeout time.Duration
	LockFile    string
	// ReorganizationLimit is the deepest fork the organizer will follow; 0 is unlimited.
	ReorganizationLimit uint32
	// IndexPayments writes the address history and stealth rows of each block.
	IndexPayments bool
}

type MetricsSettings struct {
	Enabled       bool
	ListenAddress string
}

type Settings struct {
	ClientName      string
	DataFolder      string
	LogLevel        string
	LoggerType      string
	ChainCfgParams  *chaincfg.Params
	Dispatcher      DispatcherSettings
	BlockValidation BlockValidationSettings
	BlockChain      BlockChainSettings
	Metrics         MetricsSettings
}
