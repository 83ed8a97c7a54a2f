package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/secnot/bitcallback/bitcallback/admission"
	"github.com/secnot/bitcallback/bitcallback/chainmon"
	"github.com/secnot/bitcallback/bitcallback/dispatch"
	"github.com/secnot/bitcallback/bitcallback/store"
)

// logWriter fans log output out to stdout and the rotating log file.
type logWriter struct {
	rotatorPipe *io.PipeWriter
}

func (w *logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if w.rotatorPipe != nil {
		return w.rotatorPipe.Write(p)
	}
	return len(p), nil
}

var (
	writer     = &logWriter{}
	backendLog = btclog.NewBackend(writer)
	logRotator *rotator.Rotator

	cmonLog = backendLog.Logger("CMON")
	dispLog = backendLog.Logger("DISP")
	storLog = backendLog.Logger("STOR")
	admnLog = backendLog.Logger("ADMN")
)

// initLogRotator opens the rotating log file under logDir and starts
// piping backend output into it.
func initLogRotator(logDir string) error {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile := filepath.Join(logDir, "bitcallbackd.log")
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create log rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	writer.rotatorPipe = pw
	logRotator = r
	return nil
}

// setupLoggers wires every subsystem logger into its package and sets the
// shared log level.
func setupLoggers(level string) {
	chainmon.UseLogger(cmonLog)
	dispatch.UseLogger(dispLog)
	store.UseLogger(storLog)
	admission.UseLogger(admnLog)

	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		lvl = btclog.LevelInfo
	}
	for _, l := range []btclog.Logger{cmonLog, dispLog, storLog, admnLog} {
		l.SetLevel(lvl)
	}
}
