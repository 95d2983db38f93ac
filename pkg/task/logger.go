package task

import (
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// zapLogger routes asynq's internal logging through the global zap logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func newLogger() asynq.Logger {
	return &zapLogger{sugar: zap.L().Named("asynq").Sugar()}
}

func (l *zapLogger) Debug(args ...interface{}) { l.sugar.Debug(args...) }
func (l *zapLogger) Info(args ...interface{})  { l.sugar.Info(args...) }
func (l *zapLogger) Warn(args ...interface{})  { l.sugar.Warn(args...) }
func (l *zapLogger) Error(args ...interface{}) { l.sugar.Error(args...) }
func (l *zapLogger) Fatal(args ...interface{}) { l.sugar.Fatal(args...) }
