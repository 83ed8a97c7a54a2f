// Command bitcallbackd runs the Bitcoin transaction callback service: it
// monitors a bitcoind node for confirmed transactions against subscribed
// addresses and delivers signed HTTP callbacks, retrying until
// acknowledged.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/secnot/bitcallback/bitcallback/admission"
	"github.com/secnot/bitcallback/bitcallback/chainmon"
	"github.com/secnot/bitcallback/bitcallback/config"
	"github.com/secnot/bitcallback/bitcallback/dispatch"
	"github.com/secnot/bitcallback/bitcallback/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	if err := initLogRotator(cfg.LogDir); err != nil {
		return err
	}
	setupLoggers(cfg.LogLevel)

	if _, err := chainmon.ParamsForChain(cfg.Chain); err != nil {
		return fmt.Errorf("bitcallbackd: %w", err)
	}

	st, err := store.Open(cfg.StoreDialect, cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("bitcallbackd: failed to open store: %w", err)
	}
	defer st.Close()

	signKey, err := dispatch.LoadKey(cfg.SignKeyPath)
	if err != nil {
		return fmt.Errorf("bitcallbackd: failed to load signing key: %w", err)
	}

	dispatcher, err := dispatch.New(st, signKey, dispatch.Config{
		RetriesMax:     cfg.Retries,
		RetryPeriod:    cfg.RetryPeriod,
		NWorkers:       cfg.NThreads,
		RequestTimeout: time.Second,
		Recover:        true,
	}, dispatch.NewHTTPSender())
	if err != nil {
		return fmt.Errorf("bitcallbackd: failed to build dispatcher: %w", err)
	}
	dispatchTask := dispatch.NewTask(dispatcher, 5*time.Second)

	chainmonTask, err := chainmon.NewTask(chainmon.Config{
		BitcoindURL:         cfg.BitcoindURL,
		BitcoindUser:        cfg.BitcoindUser,
		BitcoindPass:        cfg.BitcoindPass,
		BitcoindDisableTLS:  cfg.BitcoindDisableTLS,
		Chain:               cfg.Chain,
		Confirmations:       cfg.Confirmations,
		StartBlock:          cfg.StartBlock,
		ReloadSubscriptions: cfg.ReloadSubscriptions,
		CacheCapacity:       cfg.CacheCapacity,
		PollPeriod:          cfg.PollPeriod,
	}, st, dispatchTask.Commands())
	if err != nil {
		return fmt.Errorf("bitcallbackd: failed to build chain monitor: %w", err)
	}

	server := admission.New(st, chainmonTask, dispatchTask, 0)

	dispatchTask.Start()
	chainmonTask.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		admnLog.Infof("received %v, shutting down", sig)
	case err := <-errCh:
		admnLog.Errorf("admission server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	chainmonTask.Stop()
	dispatchTask.Stop()

	if logRotator != nil {
		logRotator.Close()
	}

	return nil
}
