package transfer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
)

func TestRegistry(t *testing.T) {
	tests := []struct {
		id   uint8
		name string
	}{
		{Copy, "copy"},
		{UnitToByte, "unit-to-byte"},
		{WideToByte, "wide-to-byte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Get(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.name, tr.Name())
			assert.Equal(t, tt.name, GetName(tt.id))
			assert.True(t, tr.CanReverse())

			byName, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.id, byName.ID())
		})
	}

	_, err := Get(0x7f)
	assert.ErrorIs(t, err, muxerrors.ErrUnknownTransfer)
	assert.Equal(t, "UNKNOWN_7f", GetName(0x7f))
	_, err = Lookup("gzip")
	assert.ErrorIs(t, err, muxerrors.ErrUnknownTransfer)
}

func TestUnitToByte(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{1, 255},
		{0.5, 127.5},
	}

	for _, tt := range tests {
		got, err := Apply(UnitToByte, tt.in, false)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-9)

		back, err := Apply(UnitToByte, got, true)
		require.NoError(t, err)
		assert.InDelta(t, tt.in, back, 1e-9)
	}
}

func TestWideToByteRoundTripThroughByte(t *testing.T) {
	for _, v := range []float64{-1, -0.5, 0, 0.3, 1} {
		stored := math.Round(Registry[WideToByte].Apply(v))
		back := Registry[WideToByte].Reverse(stored)
		assert.InDelta(t, v, back, 1.0/255, "value %v", v)
	}
}

func TestCopyIsIdentity(t *testing.T) {
	got, err := Apply(Copy, 42, true)
	require.NoError(t, err)
	assert.Equal(t, 42.0, got)
}
