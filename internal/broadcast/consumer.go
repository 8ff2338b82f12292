package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/topics"
)

// Publisher entrega um payload num canal de fan-out
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Forwarder repassa previsões e sinais para o gateway WS e só então confirma.
// Previsões vão para o tópico da partida; sinais para o tópico global.
type Forwarder struct {
	Log     *zap.Logger
	Pub     Publisher
	Channel string

	OnForward func(event string) // métricas
}

func (f *Forwarder) Loop(b bus.Bus, consumer string, count int64, block, reclaimMinIdle time.Duration) *bus.Loop {
	return &bus.Loop{
		Bus:            b,
		Log:            f.Log,
		Group:          topics.GroupBroadcast,
		Consumer:       consumer,
		Streams:        []string{topics.LivePredictions, topics.LiveSignals},
		Count:          count,
		Block:          block,
		Handler:        f,
		ReclaimMinIdle: reclaimMinIdle,
	}
}

func (f *Forwarder) Handle(ctx context.Context, m bus.Message) error {
	env, err := envelope(m)
	if err != nil {
		return bus.Discard(err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return bus.Discard(err)
	}

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := f.Pub.Publish(pctx, f.Channel, b); err != nil {
		return fmt.Errorf("broadcast publish: %w", err)
	}
	if f.OnForward != nil {
		f.OnForward(env.Event)
	}
	return nil
}

func envelope(m bus.Message) (events.Envelope, error) {
	switch m.Stream {
	case topics.LivePredictions:
		p, err := events.ParsePredictionUpdate(m.Fields)
		if err != nil {
			return events.Envelope{}, err
		}
		if p.Timestamp.IsZero() {
			p.Timestamp = idTime(m.ID)
		}
		payload, err := json.Marshal(p)
		if err != nil {
			return events.Envelope{}, err
		}
		return events.Envelope{Topic: topics.FixtureTopic(p.FixtureID), Event: events.EventPredictionUpdate, Payload: payload}, nil

	case topics.LiveSignals:
		s, err := events.ParseLiveSignal(m.Fields)
		if err != nil {
			return events.Envelope{}, err
		}
		if s.Timestamp.IsZero() {
			s.Timestamp = idTime(m.ID)
		}
		payload, err := json.Marshal(s)
		if err != nil {
			return events.Envelope{}, err
		}
		return events.Envelope{Topic: topics.GlobalTopic, Event: events.EventSignalNew, Payload: payload}, nil
	}
	return events.Envelope{}, fmt.Errorf("unexpected stream %q", m.Stream)
}

// idTime extrai o instante do id da entrada ("<ms>-<seq>")
func idTime(id string) time.Time {
	ms, err := strconv.ParseInt(strings.SplitN(id, "-", 2)[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
