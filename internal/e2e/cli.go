package e2e

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/kaushal/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends structured logs to both stderr and a file. If logFile is
// empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		logFile = "e2e_log_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stderr, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return file, nil
}
