package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")

	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.Equal(t, DefaultBaud, cfg.Baud)
	assert.Equal(t, 100*time.Millisecond, cfg.ReadTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, DefaultConfig("").Validate(), ErrNoDevice)

	cfg := DefaultConfig("/dev/ttyUSB0")
	cfg.Baud = 0
	assert.Error(t, cfg.Validate())
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open(nil)
	require.Error(t, err)

	_, err = Open(DefaultConfig(""))
	assert.ErrorIs(t, err, ErrNoDevice)
}
