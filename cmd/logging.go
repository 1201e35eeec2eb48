package cmd

import (
	"io"

	"github.com/natefinch/lumberjack"

	"grimm.is/speedctl/internal/config"
	"grimm.is/speedctl/internal/logging"
)

// setupLogging installs the process logger described by the logging block.
// The returned func closes the log file and syslog connection, if any.
func setupLogging(cfg *config.Config, process string) (*logging.Logger, func()) {
	logging.SetPrefix(process)

	logCfg := logging.DefaultConfig()
	var closers []io.Closer
	cleanup := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	if lc := cfg.Logging; lc != nil {
		if level, err := logging.ParseLevel(lc.Level); err == nil {
			logCfg.Level = level
		}
		logCfg.JSON = lc.JSON

		if fc := lc.File; fc != nil {
			file := rotatingFile(fc)
			logCfg.Output = logging.MultiWriter(logCfg.Output, file)
			closers = append(closers, file)
		}

		if sc := lc.Syslog; sc != nil && sc.Enabled {
			writer, err := logging.NewSyslogWriter(logging.SyslogConfig{
				Host:     sc.Host,
				Port:     sc.Port,
				Protocol: sc.Protocol,
				Tag:      sc.Tag,
				Facility: sc.Facility,
			})
			if err != nil {
				logging.New(logCfg).Error("Failed to initialize syslog", "error", err)
			} else {
				logCfg.Output = logging.MultiWriter(logCfg.Output, writer)
				closers = append(closers, writer)
			}
		}
	}

	logger := logging.New(logCfg)
	logging.SetDefault(logger)
	return logger, cleanup
}

// rotatingFile returns a size-rotated log file writer.
func rotatingFile(fc *config.LogFileConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAgeDays,
	}
}

// applyLogLevel updates the default logger after a reload.
func applyLogLevel(cfg *config.Config) {
	if cfg.Logging == nil {
		return
	}
	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		logging.Default().SetLevel(level)
	}
}

// quietLogger discards everything below errors; used by one-shot commands.
func quietLogger(w io.Writer) *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Output: w})
}
