package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const DefaultService = "promoscout"

type Config struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Service string `mapstructure:"service"`
}

// New builds the process logger. Output goes to stderr unless out is given.
func New(cfg Config, out ...io.Writer) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if len(out) > 0 && out[0] != nil {
		logger.SetOutput(out[0])
	}

	switch strings.ToLower(cfg.Format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	service := cfg.Service
	if service == "" {
		service = DefaultService
	}
	return logger.WithFields(logrus.Fields{"service": service})
}
