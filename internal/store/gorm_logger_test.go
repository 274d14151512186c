package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"bookcatalog/internal/platform/logger"
)

func TestGormWriter_UsesServiceLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	w := gormWriter{log: log.With("component", "gorm")}
	w.Printf("%s [%.3fms] [rows:%v] %s", "books.go:12", 1204.5, 1, "SELECT 1")

	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "books.go:12 [1204.500ms] [rows:1] SELECT 1", entries[0].Message)
	assert.Equal(t, "gorm", entries[0].ContextMap()["component"])
}
