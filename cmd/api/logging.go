package main

import (
	"io"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"gopkg.in/natefinch/lumberjack.v2"

	"coinflip-relay/internal/config"
)

// configureLogging sends the standard logger and gin's request log to stderr
// and, when LOG_FILE is set, to a rotating file as well.
func configureLogging(cfg *config.Config) func() {
	out := io.Writer(os.Stderr)
	closeFn := func() {}

	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotator)
		closeFn = func() { rotator.Close() }
	}

	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	gin.DefaultWriter = out
	gin.DefaultErrorWriter = out

	return closeFn
}
