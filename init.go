package sigscan

import (
	"os"
	"strconv"

	"github.com/unvoidf/sigscan/pkg/logger"
	"github.com/unvoidf/sigscan/pkg/logger/zerolog"
)

// DefaultLog is the default logger instance, available before the
// configuration is loaded.
var DefaultLog logger.Logger

const (
	// Default configuration values
	defaultLogLevel      = "info"
	defaultLogTimeFormat = "2006-01-02 15:04:05"
	defaultLogColored    = "true"
	defaultLogJSON       = "false"
)

// Environment variable names
const (
	envLogLevel      = "SIGSCAN_LOG_LEVEL"
	envLogTimeFormat = "SIGSCAN_LOG_TIME_FORMAT"
	envLogColor      = "SIGSCAN_LOG_COLOR"
	envLogJSON       = "SIGSCAN_LOG_JSON"
)

func init() {
	// Initialize the logger with configuration from environment variables
	log, err := initLogger()
	if err != nil {
		panic(err)
	}

	DefaultLog = zerolog.NewAdapter(log.Logger)
}

// initLogger creates a new logger instance configured from environment variables
func initLogger() (*zerolog.Logger, error) {
	logLevel := getEnvWithDefault(envLogLevel, defaultLogLevel)
	logTimeFormat := getEnvWithDefault(envLogTimeFormat, defaultLogTimeFormat)

	logColored, err := parseBoolEnv(envLogColor, defaultLogColored)
	if err != nil {
		return nil, err
	}

	logJSON, err := parseBoolEnv(envLogJSON, defaultLogJSON)
	if err != nil {
		return nil, err
	}

	return zerolog.New(logLevel, logTimeFormat, logColored, logJSON)
}

// getEnvWithDefault returns the value of the environment variable or the default if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parseBoolEnv gets a boolean environment variable with a default value
func parseBoolEnv(key, defaultValue string) (bool, error) {
	value := getEnvWithDefault(key, defaultValue)
	return strconv.ParseBool(value)
}
