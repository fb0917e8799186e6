// Package logging provides structured logging for poolminer.
//
// It wraps Go's log/slog to emit one JSON object per line, with persistent
// attributes carried by child loggers so that link and pool session events
// can be correlated after the fact.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via the With* methods share the parent's writer and its lock.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/poolminer", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	linkLog := logger.WithComponent("link")
//	linkLog.Info("associated", "ssid", cfg.Network.SSID, "attempts", 3)
//
// Per-attempt pool session logs add the attempt ID and protocol phase:
//
//	logger.WithComponent("session").WithSession(id).WithPhase("submit").
//	    Warn("share rejected", "reason", reason)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"share rejected","component":"session","session_id":"...","phase":"submit","reason":"stale"}
//
// # Log Rotation
//
// Long-running devices should bound log growth:
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  1,
//	    MaxBackups: 2,
//	    Compress:   true,
//	})
//
// Rotated files are named poolminer.log.1, poolminer.log.2 and so on, .1
// being the newest. With compression enabled they carry a .gz suffix.
//
// An empty log directory sends output to stderr, which is what the CLI
// uses when logging.dir is unset.
package logging
