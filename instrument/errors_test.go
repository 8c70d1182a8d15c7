package instrument

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReadingSplitsCodes(t *testing.T) {
	v, err := CheckReading(749.1)
	require.NoError(t, err)
	assert.Equal(t, 749.1, v)

	_, err = CheckReading(-3)
	assert.Equal(t, ErrLowSignal, err)
	_, err = CheckReading(0)
	assert.Equal(t, ErrNoValue, err)
}

func TestWrappedFaultsAreRecognised(t *testing.T) {
	err := errors.Wrap(ErrNoSignal, "reading frequency")
	assert.True(t, IsDeviceFault(err))
	assert.ErrorIs(t, err, ErrNoSignal)
	assert.Contains(t, err.Error(), "not detected any signal")

	err = fmt.Errorf("writing set-point: %w", ErrBusy)
	assert.True(t, IsDeviceFault(err))
	assert.False(t, IsDeviceFault(errors.New("cable unplugged")))
}

func TestUnknownCodesStillFormat(t *testing.T) {
	assert.Contains(t, ReadError(-99).Error(), "UNKNOWN")
	assert.Contains(t, SetError(-99).Error(), "UNKNOWN")
	assert.NoError(t, CheckSet(0))
	assert.Equal(t, ErrOutOfRange, CheckSet(-3))
}

type fakeExposure struct {
	set []float64
}

func (f *fakeExposure) Exposure(ctx context.Context, ch int) (float64, error) { return 2, nil }
func (f *fakeExposure) SetExposure(ctx context.Context, ch int, ms float64) error {
	f.set = append(f.set, ms)
	return nil
}
func (f *fakeExposure) ExposureRange(ctx context.Context) (float64, float64, error) {
	return 1, 100, nil
}
func (f *fakeExposure) SetAutoExposure(ctx context.Context, ch int, auto bool) error { return nil }

func TestSetExposureCheckedRejectsOutOfRange(t *testing.T) {
	f := &fakeExposure{}
	ctx := context.Background()
	require.NoError(t, SetExposureChecked(ctx, f, 1, 10))
	assert.ErrorIs(t, SetExposureChecked(ctx, f, 1, 1000), ErrOutOfRange)
	assert.Equal(t, []float64{10}, f.set)
}

func TestEveryCodeHasAMessage(t *testing.T) {
	reads := []ReadError{ErrNoValue, ErrNoSignal, ErrBadSignal, ErrLowSignal,
		ErrBigSignal, ErrMeterMissing, ErrNotAvailable, ErrNoPulse}
	for _, e := range reads {
		assert.NotContains(t, e.Error(), "UNKNOWN", int(e))
	}
	sets := []SetError{ErrWlmMissing, ErrCouldNotSet, ErrOutOfRange, ErrOutOfResources,
		ErrInternal, ErrSetNotAvailable, ErrBusy, ErrNotInMeasurement, ErrOnlyInMeasurement,
		ErrChannelUnavailable, ErrChannelTempUnavail, ErrUnitNotAvailable, ErrInterruptedByUser}
	for _, e := range sets {
		assert.NotContains(t, e.Error(), "UNKNOWN", int(e))
	}
	assert.Contains(t, ReadError(-7).Error(), "UNKNOWN")
}
