package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

type LoggerConfig struct {
	// trace, debug, info, warn, error or off
	LogLevel            string `json:"logLevel"`
	JSONLogFormat       bool   `json:"jsonLogFormat"`
	OpenOrCreateNewFile bool   `json:"openOrCreateNewFile"`
	LogsDirectory       string `json:"logsDirectory"`
	LogFile             string `json:"logFile"`
	Name                string `json:"name"`
}

func NewLogger(config LoggerConfig) (hclog.Logger, error) {
	level := hclog.Info
	if config.LogLevel != "" {
		level = hclog.LevelFromString(config.LogLevel)
		if level == hclog.NoLevel {
			return nil, fmt.Errorf("invalid log level: %s", config.LogLevel)
		}
	}

	var output io.Writer = os.Stderr

	if config.LogFile != "" {
		fullFilePath := config.LogFile

		if config.LogsDirectory != "" {
			if dirErr := os.MkdirAll(config.LogsDirectory, 0750); dirErr == nil {
				fullFilePath = filepath.Join(config.LogsDirectory, fullFilePath)
			}
		}

		if !config.OpenOrCreateNewFile {
			timestamp := strings.NewReplacer(":", "_", "-", "_").Replace(time.Now().UTC().Format(time.RFC3339))
			fullFilePath = fullFilePath + "_" + timestamp
		}

		logFileWriter, err := os.OpenFile(fullFilePath+".log", os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
		if err != nil {
			return nil, fmt.Errorf("could not create or open log file, %w", err)
		}

		output = logFileWriter
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       config.Name,
		Level:      level,
		Output:     output,
		JSONFormat: config.JSONLogFormat,
	}), nil
}
