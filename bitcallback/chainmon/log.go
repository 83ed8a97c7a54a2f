package chainmon

import "github.com/btcsuite/btclog"

// log is the package-wide logger for chainmon. It is disabled by default so
// the package can be imported without a caller having wired a backend yet;
// cmd/bitcallbackd calls UseLogger once a btclog.Backend is available.
var log btclog.Logger

func init() {
	DisableLog()
}

// DisableLog disables all library log output.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}
