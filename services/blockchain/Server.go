package blockchain

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/settings"
	blockchain_store "github.com/bitcoin-sv/chaincore/stores/blockchain"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util/dispatcher"
	"github.com/bitcoin-sv/chaincore/util/health"
)

// Server runs a Blockchain as a managed service.
type Server struct {
	logger     ulogger.Logger
	settings   *settings.Settings
	store      blockchain_store.Store
	dispatcher *dispatcher.Dispatcher
	blockchain *Blockchain
}

func NewServer(logger ulogger.Logger, tSettings *settings.Settings) *Server {
	return &Server{
		logger:   logger,
		settings: tSettings,
	}
}

func (s *Server) Init(_ context.Context) error {
	store, err := blockchain_store.NewStore(s.logger.New("store"), s.settings.BlockChain.StoreURL, s.settings.DataFolder)
	if err != nil {
		return err
	}

	s.store = store
	s.dispatcher = dispatcher.New(s.logger.New("dispatcher"), s.settings.Dispatcher.Workers)
	s.blockchain = New(s.logger, s.settings, store, s.dispatcher)

	return nil
}

func (s *Server) Start(ctx context.Context, readyCh chan<- struct{}) error {
	if !s.blockchain.Start() {
		return errors.NewStorageLockedError("blockchain in %s could not be started", s.settings.DataFolder)
	}

	close(readyCh)

	<-ctx.Done()

	return nil
}

func (s *Server) Stop(_ context.Context) error {
	if s.blockchain != nil {
		s.blockchain.Stop()
	}

	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}

	var err error

	if s.store != nil {
		err = s.store.Close()
	}

	if s.blockchain != nil {
		err = errors.Join(err, s.blockchain.Unlock())
	}

	return err
}

// Health reports liveness from the running flag alone. Readiness also needs
// the store to answer and the dispatcher backlog to stay under its limit.
func (s *Server) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	checks := []health.Check{
		{Name: "Blockchain", Check: s.checkRunning},
	}

	if !checkLiveness {
		checks = append(checks,
			health.Check{Name: "BlockchainStore", Check: s.checkStore},
			health.Check{Name: "Dispatcher", Check: s.checkDispatcher},
		)
	}

	return health.CheckAll(ctx, checkLiveness, checks)
}

func (s *Server) checkRunning(context.Context, bool) (int, string, error) {
	if s.blockchain == nil || s.blockchain.Stopped() {
		return http.StatusServiceUnavailable, "stopped", nil
	}

	return http.StatusOK, fmt.Sprintf("running, hit rate %g", s.blockchain.HitRate()), nil
}

func (s *Server) checkStore(ctx context.Context, _ bool) (int, string, error) {
	if s.store == nil {
		return http.StatusServiceUnavailable, "not initialised", nil
	}

	height, err := s.store.GetLastHeight(ctx)
	if err != nil {
		return http.StatusServiceUnavailable, "tip unavailable", err
	}

	return http.StatusOK, fmt.Sprintf("tip at height %d", height), nil
}

func (s *Server) checkDispatcher(context.Context, bool) (int, string, error) {
	if s.dispatcher == nil || s.dispatcher.Stopped() {
		return http.StatusServiceUnavailable, "stopped", nil
	}

	pending := s.dispatcher.Pending()
	message := fmt.Sprintf("%d jobs pending", pending)

	if limit := s.settings.Dispatcher.MaxPending; limit > 0 && pending > limit {
		return http.StatusServiceUnavailable, message, errors.NewServiceUnavailableError("dispatcher backlog %d exceeds %d", pending, limit)
	}

	return http.StatusOK, message, nil
}

// Blockchain returns the running chain. It is nil before Init.
func (s *Server) Blockchain() *Blockchain {
	return s.blockchain
}
