package replay

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trend-backtest/internal/model"
)

type memSource struct {
	bars []model.Bar
	err  error
}

func (m *memSource) ReadBars(_ string, afterTS int64) ([]model.Bar, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Bar
	for _, b := range m.bars {
		if b.TS.Unix() > afterTS {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memSource) Close() error { return nil }

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(day int, close float64) model.Bar {
	return model.Bar{TS: t0.AddDate(0, 0, day), Open: close, High: close, Low: close, Close: close}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(nil))
	assert.NoError(t, Validate([]model.Bar{bar(0, 1)}))
	assert.NoError(t, Validate([]model.Bar{bar(0, 1), bar(1, 2), bar(5, 3)}))

	err := Validate([]model.Bar{bar(0, 1), bar(2, 2), bar(1, 3)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnorderedBars))

	err = Validate([]model.Bar{bar(0, 1), bar(0, 2)})
	assert.True(t, errors.Is(err, ErrUnorderedBars), "equal timestamps are not strictly increasing")
}

func TestLoad_SortsAndFilters(t *testing.T) {
	src := &memSource{bars: []model.Bar{bar(3, 4), bar(1, 2), bar(2, 3), bar(0, 1)}}

	bars, err := Load(src, "X", t0.Unix())
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 2.0, bars[0].Close)
	assert.Equal(t, 4.0, bars[2].Close)
}

func TestLoad_RejectsDuplicates(t *testing.T) {
	src := &memSource{bars: []model.Bar{bar(1, 2), bar(1, 3)}}
	_, err := Load(src, "X", 0)
	assert.True(t, errors.Is(err, ErrUnorderedBars))
}

func TestLoad_PropagatesSourceError(t *testing.T) {
	boom := errors.New("disk gone")
	_, err := Load(&memSource{err: boom}, "X", 0)
	assert.True(t, errors.Is(err, boom))
}
