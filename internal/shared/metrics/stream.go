package metrics

import "github.com/prometheus/client_golang/prometheus"

// StreamCounters agrupa os contadores de um consumidor de streams
type StreamCounters struct {
	Consumed *prometheus.CounterVec
	Acked    *prometheus.CounterVec
	Errors   *prometheus.CounterVec
}

// NewStreamCounters cria e registra os contadores com o prefixo do serviço (ex.: "persistor")
func NewStreamCounters(reg prometheus.Registerer, prefix string) *StreamCounters {
	c := &StreamCounters{
		Consumed: prometheus.NewCounterVec(prometheus.CounterOpts{Name: prefix + "_messages_consumed_total", Help: "mensagens consumidas por stream"}, []string{"stream"}),
		Acked:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: prefix + "_messages_acked_total", Help: "mensagens confirmadas por stream"}, []string{"stream"}),
		Errors:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: prefix + "_errors_total", Help: "erros por estágio"}, []string{"stage"}),
	}
	reg.MustRegister(c.Consumed, c.Acked, c.Errors)
	return c
}

func (c *StreamCounters) OnConsumed(stream string) { c.Consumed.WithLabelValues(stream).Inc() }
func (c *StreamCounters) OnAcked(stream string) { c.Acked.WithLabelValues(stream).Inc() }
func (c *StreamCounters) OnError(stage string) { c.Errors.WithLabelValues(stage).Inc() }
