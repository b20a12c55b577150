package link

import "github.com/btcsuite/btclog"

// log is this package's subsystem logger, following the teacher's one-
// logger-per-package convention (peerLog, srvrLog, ...). Disabled until the
// harness or host calls UseLogger.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by every Link.
func UseLogger(logger btclog.Logger) {
	log = logger
}
