package config

import (
	"io"
	"log"
	"os"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type LoggingConfig struct {
	// File, when set, sends logs to a size-rotated file instead of stdout.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Writer returns the shared log destination. Callers close it on shutdown
// if it implements io.Closer.
func (l LoggingConfig) Writer() io.Writer {
	if strings.TrimSpace(l.File) == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   l.File,
		MaxSize:    l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

// NewLogger returns a component logger, e.g. NewLogger(w, "server") prefixes
// lines with "[server] ".
func NewLogger(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags|log.Lmicroseconds)
}
