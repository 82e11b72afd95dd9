package logger

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewZapLog builds a production zap logger. When file is not empty the JSON
// stream is also written to a rotated log file.
func NewZapLog(level, file string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	if file == "" {
		zapcfg := zap.NewProductionConfig()
		zapcfg.Level = lvl
		return zapcfg.Build()
	}

	rotated := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    64,
		MaxBackups: 7,
		MaxAge:     7,
	}
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(rotated), lvl),
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), lvl),
	)
	return zap.New(core, zap.AddCaller()), nil
}

// RequestLog logs every request once the downstream handlers (and the error
// handler, for failed requests) have produced a response.
func RequestLog(zaplog *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// let the app error handler render the response so the status is final
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		zaplog.Info("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Int("length", len(c.Response().Body())),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}
