// Package logging provides structured logging for courier using uber/zap.
//
// Two output modes are supported:
//   - Production: JSON lines, suitable for journald or a log shipper
//   - Development: colored console output
//
// Components never construct their own logger. They receive a *zap.Logger
// scoped with Component and fall back to a no-op logger when none is given.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "debug", Development: true})
//	if err != nil {
//		return err
//	}
//	defer logger.Sync()
//	relayLog := logger.Component("relay")
//	relayLog.Info("connected", zap.String("url", url))
package logging
