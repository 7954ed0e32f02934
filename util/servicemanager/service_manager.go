// Package servicemanager runs long lived services side by side and stops them
// together when one fails or the process is signalled.
package servicemanager

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util/health"
	"golang.org/x/sync/errgroup"
)

// Service is started in registration order; Start must close readyCh once the
// service accepts work and block until ctx is done.
type Service interface {
	Init(ctx context.Context) error
	Start(ctx context.Context, readyCh chan<- struct{}) error
	Stop(ctx context.Context) error
	Health(ctx context.Context, checkLiveness bool) (int, string, error)
}

type serviceWrapper struct {
	name     string
	instance Service
	readyCh  chan struct{}
}

type ServiceManager struct {
	services   []serviceWrapper
	logger     ulogger.Logger
	Ctx        context.Context
	cancelFunc context.CancelFunc
	g          *errgroup.Group
	// StartTimeout bounds the wait for the previous service to become ready.
	StartTimeout time.Duration
	StopTimeout  time.Duration
}

// NewServiceManager derives the manager context from ctx and cancels it on
// SIGINT or SIGTERM.
func NewServiceManager(ctx context.Context, logger ulogger.Logger) *ServiceManager {
	ctx, cancelFunc := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	sm := &ServiceManager{
		logger:       logger,
		Ctx:          ctx,
		cancelFunc:   cancelFunc,
		g:            g,
		StartTimeout: 5 * time.Second,
		StopTimeout:  5 * time.Second,
	}

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigs:
			sm.logger.Infof("[ServiceManager] received shutdown signal, stopping services")
			sm.cancelFunc()
		case <-ctx.Done():
		}

		signal.Stop(sigs)
	}()

	return sm
}

// AddService initializes service and starts it once the previously added
// service is ready.
func (sm *ServiceManager) AddService(name string, service Service) error {
	var previous chan struct{}
	if len(sm.services) > 0 {
		previous = sm.services[len(sm.services)-1].readyCh
	}

	sw := serviceWrapper{
		name:     name,
		instance: service,
		readyCh:  make(chan struct{}),
	}

	sm.services = append(sm.services, sw)

	sm.logger.Infof("[ServiceManager] initializing service %s", name)

	if err := service.Init(sm.Ctx); err != nil {
		return err
	}

	sm.g.Go(func() error {
		if previous != nil {
			if err := sm.waitForReady(sw.name, previous); err != nil {
				return err
			}
		}

		sm.logger.Infof("[ServiceManager] starting service %s", name)

		if err := service.Start(sm.Ctx, sw.readyCh); err != nil {
			sm.logger.Errorf("[ServiceManager] service %s failed: %v", name, err)
			return err
		}

		return nil
	})

	return nil
}

func (sm *ServiceManager) waitForReady(name string, previous chan struct{}) error {
	timer := time.NewTimer(sm.StartTimeout)
	defer timer.Stop()

	select {
	case <-previous:
		return nil
	case <-sm.Ctx.Done():
		return sm.Ctx.Err()
	case <-timer.C:
		return errors.NewServiceUnavailableError("%s timed out waiting for the previous service to start", name)
	}
}

// ServicesNotReady lists the services that have not closed their ready channel.
func (sm *ServiceManager) ServicesNotReady() []string {
	var notReady []string

	for _, service := range sm.services {
		select {
		case <-service.readyCh:
		default:
			notReady = append(notReady, service.name)
		}
	}

	return notReady
}

func (sm *ServiceManager) ForceShutdown() {
	sm.cancelFunc()
}

// Wait blocks until every service returned, then stops them in reverse order.
// A cancelled context is a clean shutdown and yields nil.
func (sm *ServiceManager) Wait() error {
	err := sm.g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		sm.logger.Errorf("[ServiceManager] received error: %v", err)
	}

	for i := len(sm.services) - 1; i >= 0; i-- {
		service := sm.services[i]

		stopCtx, stopCancel := context.WithTimeout(context.Background(), sm.StopTimeout)

		if stopErr := service.instance.Stop(stopCtx); stopErr != nil {
			sm.logger.Warnf("[ServiceManager] failed to stop service %s: %v", service.name, stopErr)
		} else {
			sm.logger.Infof("[ServiceManager] service %s stopped", service.name)
		}

		stopCancel()
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// HealthHandler aggregates the health of all services into one status code and
// an indented JSON document.
func (sm *ServiceManager) HealthHandler(ctx context.Context, checkLiveness bool) (int, string, error) {
	checks := make([]health.Check, 0, len(sm.services))

	for _, service := range sm.services {
		checks = append(checks, health.Check{Name: service.name, Check: service.instance.Health})
	}

	return health.CheckAll(ctx, checkLiveness, checks)
}
