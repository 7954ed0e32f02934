package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bitcoin-sv/chaincore/services/blockchain"
	"github.com/bitcoin-sv/chaincore/settings"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util/servicemanager"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBlockLine bounds a single hex encoded block read from a file.
const maxBlockLine = 1 << 30

func run(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings) error {
	sm := servicemanager.NewServiceManager(ctx, logger)

	if err := sm.AddService("blockchain", blockchain.NewServer(logger.New("blockchain"), tSettings)); err != nil {
		return err
	}

	if tSettings.Metrics.Enabled {
		if err := sm.AddService("metrics", newMetricsServer(logger.New("metrics"), tSettings.Metrics.ListenAddress, sm)); err != nil {
			return err
		}
	}

	return sm.Wait()
}

// openChain starts a chain on the configured data folder for a one-shot
// command. The returned stop function releases it.
func openChain(logger ulogger.Logger, tSettings *settings.Settings) (*blockchain.Blockchain, func(), error) {
	server := blockchain.NewServer(logger.New("blockchain"), tSettings)

	if err := server.Init(context.Background()); err != nil {
		return nil, nil, err
	}

	stop := func() {
		if err := server.Stop(context.Background()); err != nil {
			logger.Warnf("failed to stop blockchain: %v", err)
		}
	}

	if !server.Blockchain().Start() {
		stop()
		return nil, nil, errors.NewStorageLockedError("blockchain in %s could not be started", tSettings.DataFolder)
	}

	return server.Blockchain(), stop, nil
}

func storeBlocks(logger ulogger.Logger, tSettings *settings.Settings, file string, unvalidated bool) error {
	var reader io.Reader = os.Stdin

	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return errors.NewInvalidArgumentError("failed to open %s", file, err)
		}
		defer f.Close()

		reader = f
	}

	chain, stop, err := openChain(logger, tSettings)
	if err != nil {
		return err
	}
	defer stop()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1<<20), maxBlockLine)

	for line := 1; scanner.Scan(); line++ {
		blockHex := strings.TrimSpace(scanner.Text())
		if blockHex == "" {
			continue
		}

		block, err := model.NewBlockFromString(blockHex)
		if err != nil {
			return errors.NewInvalidArgumentError("line %d is not a block", line, err)
		}

		done := make(chan error, 1)
		handler := func(info model.BlockInfo, err error) {
			if err == nil || errors.Is(err, errors.ErrBlockExists) {
				fmt.Printf("%s %s %d\n", block.Hash(), info.Status, info.Height)
			}

			done <- err
		}

		if unvalidated {
			chain.Import(block, handler)
		} else {
			chain.Store(block, handler)
		}

		if err = <-done; err != nil && !errors.Is(err, errors.ErrBlockExists) {
			return err
		}
	}

	return scanner.Err()
}

func printHeight(logger ulogger.Logger, tSettings *settings.Settings) error {
	chain, stop, err := openChain(logger, tSettings)
	if err != nil {
		return err
	}
	defer stop()

	done := make(chan error, 1)

	chain.FetchLastHeight(func(height uint32, err error) {
		if err == nil {
			fmt.Println(height)
		}

		done <- err
	})

	return <-done
}

func printHeader(logger ulogger.Logger, tSettings *settings.Settings, height uint32) error {
	chain, stop, err := openChain(logger, tSettings)
	if err != nil {
		return err
	}
	defer stop()

	done := make(chan error, 1)

	chain.FetchBlockHeaderByHeight(height, func(header *model.BlockHeader, err error) {
		if err == nil {
			writeHeader(os.Stdout, header)
		}

		done <- err
	})

	return <-done
}

// decodeHeader prints a hex encoded 80 byte header without opening the chain.
func decodeHeader(w io.Writer, headerHex string) error {
	header, err := model.NewBlockHeaderFromString(strings.TrimSpace(headerHex))
	if err != nil {
		return err
	}

	writeHeader(w, header)

	return nil
}

func writeHeader(w io.Writer, header *model.BlockHeader) {
	_, _ = fmt.Fprintf(w, "hash:       %s\nprevious:   %s\nmerkleroot: %s\ntime:       %s\nbits:       %s\nnonce:      %d\n",
		header.Hash(), header.HashPrevBlock, header.HashMerkleRoot, time.Unix(int64(header.Timestamp), 0).UTC(), header.Bits, header.Nonce)
}

// metricsServer serves prometheus metrics and the aggregated service health.
type metricsServer struct {
	logger ulogger.Logger
	server *http.Server
}

func newMetricsServer(logger ulogger.Logger, listenAddress string, sm *servicemanager.ServiceManager) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, body, _ := sm.HealthHandler(r.Context(), r.URL.Query().Has("liveness"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	return &metricsServer{
		logger: logger,
		server: &http.Server{
			Addr:              listenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (m *metricsServer) Init(context.Context) error {
	return nil
}

func (m *metricsServer) Start(ctx context.Context, readyCh chan<- struct{}) error {
	errCh := make(chan error, 1)

	go func() {
		m.logger.Infof("[Metrics] listening on %s", m.server.Addr)
		errCh <- m.server.ListenAndServe()
	}()

	close(readyCh)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return errors.NewServiceUnavailableError("metrics server on %s failed", m.server.Addr, err)
	}
}

func (m *metricsServer) Stop(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

func (m *metricsServer) Health(context.Context, bool) (int, string, error) {
	return http.StatusOK, "", nil
}
