package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CreditPulse/internal/domain/models"
	domrepo "CreditPulse/internal/domain/repository"
	pkgkafka "CreditPulse/pkg/kafka"
	applogger "CreditPulse/pkg/logger"
	"CreditPulse/pkg/util"
)

// InputProcessor accepts one market input row.
type InputProcessor interface {
	Process(ctx context.Context, in models.MarketInputs) error
}

// KafkaInputsHandler decodes market input rows from Kafka and feeds them to
// the processor. Rows that can never succeed are acknowledged and logged so
// the consumer does not retry them.
type KafkaInputsHandler struct {
	topic   string
	proc    InputProcessor
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewKafkaInputsHandler(topic string, proc InputProcessor, metrics domrepo.Metrics, log *applogger.Logger) *KafkaInputsHandler {
	if log == nil {
		log = applogger.Nop()
	}
	return &KafkaInputsHandler{topic: topic, proc: proc, metrics: metrics, log: log}
}

func (h *KafkaInputsHandler) Topic() string { return h.topic }

// incoming message schema:
// {ticker, date, equity_value, equity_volatility, debt_face_value, risk_free_rate, horizon_years}
// date is YYYY-MM-DD, RFC3339 or unix seconds/millis.
type inputMessage struct {
	Ticker           string          `json:"ticker"`
	Date             json.RawMessage `json:"date"`
	EquityValue      float64         `json:"equity_value"`
	EquityVolatility float64         `json:"equity_volatility"`
	DebtFaceValue    float64         `json:"debt_face_value"`
	RiskFreeRate     float64         `json:"risk_free_rate"`
	HorizonYears     float64         `json:"horizon_years"`
}

// DecodeInputs parses one message into a MarketInputs row.
func DecodeInputs(b []byte) (models.MarketInputs, error) {
	var m inputMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return models.MarketInputs{}, fmt.Errorf("%w: decode message: %v", models.ErrInvalidInput, err)
	}
	var raw string
	if err := json.Unmarshal(m.Date, &raw); err != nil {
		// numeric timestamps arrive unquoted
		raw = string(m.Date)
	}
	date, ok := util.ParseDate(raw)
	if !ok {
		return models.MarketInputs{}, fmt.Errorf("%w: unparseable date %q", models.ErrInvalidInput, raw)
	}
	return models.MarketInputs{
		Ticker:           m.Ticker,
		Date:             date,
		EquityValue:      m.EquityValue,
		EquityVolatility: m.EquityVolatility,
		DebtFaceValue:    m.DebtFaceValue,
		RiskFreeRate:     m.RiskFreeRate,
		HorizonYears:     m.HorizonYears,
	}, nil
}

func (h *KafkaInputsHandler) Handle(ctx context.Context, b []byte) error {
	in, err := DecodeInputs(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		h.log.Warn("dropping undecodable input", applogger.String("topic", h.topic), applogger.Error(err))
		return nil
	}

	start := time.Now()
	err = h.proc.Process(ctx, in)
	h.metrics.RecordLatency("consume_row", time.Since(start).Seconds())
	if errors.Is(err, models.ErrInvalidInput) {
		h.log.Warn("dropping rejected input",
			applogger.String("ticker", in.Ticker),
			applogger.Date("date", in.Date),
			applogger.Error(err),
		)
		return nil
	}
	if err != nil {
		h.metrics.RecordError("consumer_process")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaInputsHandler)(nil)
