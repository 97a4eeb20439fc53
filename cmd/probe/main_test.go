package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type syncedBuffer struct {
	bytes.Buffer
	synced bool
}

func (b *syncedBuffer) Sync() error {
	b.synced = true
	return nil
}

func TestExitFlushesLogger(t *testing.T) {

	sink := &syncedBuffer{}
	logger := zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, zap.DebugLevel))

	var code int
	var syncedBeforeExit bool
	prevExit := osExit
	osExit = func(c int) {
		code = c
		syncedBeforeExit = sink.synced
	}
	t.Cleanup(func() { osExit = prevExit })

	logger.Info("no CAD found")
	exit(logger, EXIT_NO_CAD)

	assert.Equal(t, EXIT_NO_CAD, code)
	assert.True(t, syncedBeforeExit, "logger is flushed before the process exits")
	assert.Contains(t, sink.String(), "no CAD found")
}
