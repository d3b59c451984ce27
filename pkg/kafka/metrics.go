package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type kafkaMetrics struct {
	producerMsgs    *prometheus.CounterVec
	producerErrs    *prometheus.CounterVec
	producerBytes   *prometheus.CounterVec
	producerLatency *prometheus.HistogramVec

	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerRetries       *prometheus.CounterVec
	consumerDLQ           *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsReg  prometheus.Registerer = prometheus.DefaultRegisterer
	km          *kafkaMetrics
)

// SetMetricsRegisterer sets the registerer used for producer and consumer
// metrics. It must be called before the first producer or consumer is built.
func SetMetricsRegisterer(reg prometheus.Registerer) {
	if reg != nil {
		metricsReg = reg
	}
}

func kafkaMetricsOnce() *kafkaMetrics {
	metricsOnce.Do(func() {
		f := promauto.With(metricsReg)
		km = &kafkaMetrics{
			producerMsgs: f.NewCounterVec(
				prometheus.CounterOpts{Name: "creditpulse_kafka_producer_messages_total", Help: "Total messages published to Kafka"},
				[]string{"topic", "result"},
			),
			producerErrs: f.NewCounterVec(
				prometheus.CounterOpts{Name: "creditpulse_kafka_producer_errors_total", Help: "Total producer errors"},
				[]string{"topic"},
			),
			producerBytes: f.NewCounterVec(
				prometheus.CounterOpts{Name: "creditpulse_kafka_producer_bytes_total", Help: "Total payload bytes published"},
				[]string{"topic"},
			),
			producerLatency: f.NewHistogramVec(
				prometheus.HistogramOpts{Name: "creditpulse_kafka_producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
				[]string{"topic"},
			),
			consumerQueueDepth: f.NewGaugeVec(
				prometheus.GaugeOpts{Name: "creditpulse_kafka_consumer_queue_depth", Help: "Number of messages waiting in consumer queue"},
				[]string{"topic"},
			),
			consumerHandleLatency: f.NewHistogramVec(
				prometheus.HistogramOpts{Name: "creditpulse_kafka_consumer_handle_seconds", Help: "Handling time per message"},
				[]string{"topic"},
			),
			consumerRetries: f.NewCounterVec(
				prometheus.CounterOpts{Name: "creditpulse_kafka_consumer_retries_total", Help: "Handler retries"},
				[]string{"topic"},
			),
			consumerDLQ: f.NewCounterVec(
				prometheus.CounterOpts{Name: "creditpulse_kafka_consumer_dlq_total", Help: "Messages sent to the dead letter topic"},
				[]string{"topic"},
			),
		}
	})
	return km
}

func (m *kafkaMetrics) observePublish(topic string, bytes int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		m.producerErrs.WithLabelValues(topic).Inc()
	}
	m.producerMsgs.WithLabelValues(topic, result).Add(float64(count))
	m.producerBytes.WithLabelValues(topic).Add(float64(bytes))
	m.producerLatency.WithLabelValues(topic).Observe(dur.Seconds())
}
