package blockchain

import (
	"net/url"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/kv"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/leveldb"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/memory"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/sql"
	"github.com/bitcoin-sv/chaincore/ulogger"
)

func NewStore(logger ulogger.Logger, storeURL *url.URL, dataFolder string) (Store, error) {
	logger = logger.New("chaindb")

	var (
		engine kv.Engine
		err    error
	)

	switch storeURL.Scheme {
	case "memory":
		engine = memory.New()
	case "leveldb":
		engine, err = leveldb.New(logger, storeURL, dataFolder)
	case "postgres":
		fallthrough
	case "sqlitememory":
		fallthrough
	case "sqlite":
		engine, err = sql.New(logger, storeURL, dataFolder)
	default:
		return nil, errors.NewStorageError("unknown scheme: %s", storeURL.Scheme)
	}

	if err != nil {
		return nil, err
	}

	logger.Infof("[ChainDB] using %s engine", storeURL.Scheme)

	return NewChainDB(logger, engine), nil
}
