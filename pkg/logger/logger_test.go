package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_Level(t *testing.T) {
	log := New("farmatrack", "production", "debug")
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())

	log = New("farmatrack", "production", "warn")
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	log := New("farmatrack", "production", "verbose")
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())

	log = New("farmatrack", "production", "")
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestWithComponent(t *testing.T) {
	log := New("farmatrack", "production", "info")
	child := log.WithComponent("scheduler")
	assert.NotNil(t, child)
	assert.Equal(t, log.GetLevel(), child.GetLevel())
}
