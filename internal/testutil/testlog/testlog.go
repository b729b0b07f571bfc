package testlog

import (
	"testing"

	"github.com/danmuck/edgelink/internal/logging"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log := logging.Root()
	log.Info().Msgf("test=%s", t.Name())
}
