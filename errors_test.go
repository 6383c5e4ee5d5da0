package orathin

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orathin/orathin/network"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		code int
		want network.ErrorKind
	}{
		{1017, network.KindDatabase},     // invalid credentials
		{3113, network.KindOperational},  // end-of-file on channel
		{3114, network.KindOperational},  // not connected
		{12571, network.KindOperational}, // packet writer failure
		{12751, network.KindOperational}, // call timeout policy
		{1, network.KindIntegrity},       // unique constraint
		{2291, network.KindIntegrity},    // parent key not found
		{1476, network.KindData},         // divisor is zero
		{24338, network.KindInterface},   // statement handle not executed
		{942, network.KindDatabase},      // table does not exist
	}
	for _, c := range cases {
		err := network.NewOracleError(c.code)
		assert.Equal(t, c.want, err.Kind(), "ORA-%05d", c.code)
	}
}

func TestSessionDeadForcesFastFailure(t *testing.T) {
	for _, code := range []int{3113, 3114, 12571, 12751, 3135} {
		err := network.NewOracleError(code)
		assert.True(t, err.IsSessionDead(), "ORA-%05d", code)
		assert.True(t, isBadConn(err))
	}
	assert.False(t, network.NewOracleError(1017).IsSessionDead())
	assert.False(t, isBadConn(network.NewOracleError(1)))
}

func TestRetryableCodes(t *testing.T) {
	// plan invalidations replay once; everything else surfaces
	for _, code := range []int{4061, 4065, 4068} {
		assert.True(t, canRetry(network.NewOracleError(code)), "ORA-%05d", code)
	}
	assert.False(t, canRetry(network.NewOracleError(1017)))
	assert.False(t, canRetry(fmt.Errorf("plain error")))
}

func TestKindOfDriverErrors(t *testing.T) {
	assert.Equal(t, network.KindOperational, Kind(ErrCallTimeout))
	assert.Equal(t, network.KindOperational, Kind(ErrConnectionClosed))
	assert.Equal(t, network.KindNotSupported, Kind(ErrNotSupported))
	assert.Equal(t, network.KindInterface, Kind(ErrTrailingTerminator))
}

func TestErrorMessageCatalogue(t *testing.T) {
	err := network.NewOracleError(1017)
	assert.Contains(t, err.Error(), "ORA-01017")
	err = network.NewOracleError(60)
	assert.Contains(t, err.Error(), "ORA-00060")
}
