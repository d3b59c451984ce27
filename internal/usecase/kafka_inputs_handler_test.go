package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"CreditPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type procFunc func(context.Context, models.MarketInputs) error

func (f procFunc) Process(ctx context.Context, in models.MarketInputs) error { return f(ctx, in) }

func TestDecodeInputsDateFormats(t *testing.T) {
	want := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	for _, date := range []string{`"2024-03-04"`, `"2024-03-04T15:30:00Z"`, `1709566200`, `1709566200000`} {
		msg := `{"ticker":"ACME","date":` + date + `,"equity_value":500,"equity_volatility":0.3,"debt_face_value":800,"risk_free_rate":0.03,"horizon_years":1}`
		in, err := DecodeInputs([]byte(msg))
		require.NoError(t, err, date)
		assert.True(t, want.Equal(in.Date), "%s decoded as %v", date, in.Date)
		assert.Equal(t, 800.0, in.DebtFaceValue)
	}

	_, err := DecodeInputs([]byte(`{"ticker":"ACME"}`))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = DecodeInputs([]byte(`not json`))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestKafkaInputsHandlerAcksRejectedRows(t *testing.T) {
	var got []models.MarketInputs
	h := NewKafkaInputsHandler("market-inputs", procFunc(func(_ context.Context, in models.MarketInputs) error {
		got = append(got, in)
		if in.EquityValue <= 0 {
			return models.ErrInvalidInput
		}
		return nil
	}), nopMetrics{}, nil)
	assert.Equal(t, "market-inputs", h.Topic())

	ctx := context.Background()
	require.NoError(t, h.Handle(ctx, []byte(`garbage`)))
	require.NoError(t, h.Handle(ctx, []byte(`{"ticker":"ACME","date":"2024-03-04","equity_value":0,"equity_volatility":0.3,"horizon_years":1}`)))
	require.NoError(t, h.Handle(ctx, []byte(`{"ticker":"ACME","date":"2024-03-05","equity_value":10,"equity_volatility":0.3,"horizon_years":1}`)))
	assert.Len(t, got, 2)
}

func TestKafkaInputsHandlerRetriesDownstreamErrors(t *testing.T) {
	boom := errors.New("sink unavailable")
	h := NewKafkaInputsHandler("market-inputs", procFunc(func(context.Context, models.MarketInputs) error {
		return boom
	}), nopMetrics{}, nil)

	err := h.Handle(context.Background(), []byte(`{"ticker":"ACME","date":"2024-03-04","equity_value":10,"equity_volatility":0.3,"horizon_years":1}`))
	assert.ErrorIs(t, err, boom)
}
