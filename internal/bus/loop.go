package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/topics"
)

// ErrBatchFailed indica que todas as mensagens do passo falharam no handler
// (ex.: banco fora); Run espera Backoff antes do próximo passo.
var ErrBatchFailed = errors.New("every message in the batch failed")

// Loop consome um conjunto de streams com um grupo, despachando cada mensagem
// para o Handler e confirmando conforme o resultado.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Loop struct {
	Bus      Bus
	Log      *zap.Logger
	Group    string
	Consumer string
	Streams  []string
	Count    int64
	Block    time.Duration
	Handler  Handler

	// Reclaim de pendentes ociosas (0 desativa)
	ReclaimMinIdle time.Duration
	ReclaimEvery   time.Duration
	Backoff        time.Duration

	AfterBatch func(ctx context.Context) // após cada leitura, mesmo vazia
	OnStop     func(ctx context.Context) // antes de Run retornar

	OnConsumed func(stream string) // métricas
	OnAcked    func(stream string) // métricas
	OnError    func(stage string)  // métricas por fase

	lastReclaim time.Time
}

// EnsureGroups cria o grupo em todos os streams (idempotente)
func (l *Loop) EnsureGroups(ctx context.Context) error {
	for _, s := range l.Streams {
		if err := l.Bus.CreateGroup(ctx, s, l.Group); err != nil {
			return err
		}
	}
	return nil
}

// Run executa até o contexto ser cancelado. A leitura em andamento não é
// interrompida: retorna no máximo após Block e o laço encerra em seguida.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.EnsureGroups(ctx); err != nil {
		return err
	}
	defer func() {
		if l.OnStop != nil {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			l.OnStop(stopCtx)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := l.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrBatchFailed) {
				l.Log.Warn("handlers failing, backing off", zap.String("group", l.Group), zap.Duration("backoff", l.backoff()), zap.Error(err))
				l.onError("backoff")
			} else {
				l.Log.Warn("stream read failed", zap.String("group", l.Group), zap.Error(err))
				l.onError("read")
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.backoff()):
			}
		}
	}
}

// RunOnce faz um passo do laço: reclaim (quando devido) e uma leitura.
// Devolve quantas mensagens foram despachadas; ErrBatchFailed quando todas falharam.
func (l *Loop) RunOnce(ctx context.Context) (int, error) {
	rctx := context.WithoutCancel(ctx)
	n, failed := 0, 0

	if l.reclaimDue() {
		l.lastReclaim = time.Now()
		for _, s := range l.Streams {
			msgs, err := l.Bus.Claim(rctx, s, l.Group, l.Consumer, l.ReclaimMinIdle, l.count())
			if err != nil {
				// o que já foi transferido segue para o handler
				l.Log.Warn("reclaim failed", zap.String("stream", s), zap.Error(err))
				l.onError("reclaim")
			}
			if len(msgs) > 0 {
				l.Log.Info("reclaimed pending messages", zap.String("stream", s), zap.Int("count", len(msgs)))
			}
			failed += l.dispatch(rctx, msgs)
			n += len(msgs)
		}
	}

	msgs, err := l.Bus.ReadGroup(rctx, l.Group, l.Consumer, l.Streams, l.count(), l.Block)
	if err != nil {
		return n, err
	}
	failed += l.dispatch(rctx, msgs)
	n += len(msgs)

	if l.AfterBatch != nil {
		l.AfterBatch(rctx)
	}
	if n > 0 && failed == n {
		return n, fmt.Errorf("%w: %d messages", ErrBatchFailed, failed)
	}
	return n, nil
}

// dispatch entrega cada mensagem ao handler e devolve quantas falharam
// (ficaram pendentes sem ser descartadas nem adiadas)
func (l *Loop) dispatch(ctx context.Context, msgs []Message) int {
	failed := 0
	for _, m := range msgs {
		if l.OnConsumed != nil {
			l.OnConsumed(m.Stream)
		}
		err := l.Handler.Handle(ctx, m)
		switch {
		case err == nil:
			l.ack(ctx, m)
		case errors.Is(err, ErrDeferred):
			// ack fica com o handler
		case IsDiscard(err):
			l.Log.Warn("discarding message", zap.String("stream", m.Stream), zap.String("msg_id", m.ID), zap.Error(err))
			l.onError("discard")
			l.deadLetter(ctx, m, err)
			l.ack(ctx, m)
		default:
			// fica pendente; volta pelo reclaim
			l.Log.Warn("handler failed", zap.String("stream", m.Stream), zap.String("msg_id", m.ID), zap.Error(err))
			l.onError("handle")
			failed++
		}
	}
	return failed
}

func (l *Loop) ack(ctx context.Context, m Message) {
	if err := l.Bus.Ack(ctx, m.Stream, l.Group, m.ID); err != nil {
		l.Log.Warn("ack failed", zap.String("stream", m.Stream), zap.String("msg_id", m.ID), zap.Error(err))
		l.onError("ack")
		return
	}
	if l.OnAcked != nil {
		l.OnAcked(m.Stream)
	}
}

func (l *Loop) deadLetter(ctx context.Context, m Message, cause error) {
	if err := DeadLetter(ctx, l.Bus, l.Group, m, cause); err != nil {
		l.Log.Error("dlq publish failed", zap.String("stream", m.Stream), zap.String("msg_id", m.ID), zap.Error(err))
	}
}

// DeadLetter copia a mensagem para "<stream>_dlq" com a causa e a origem.
// Não confirma a original: quem chama faz o ack.
func DeadLetter(ctx context.Context, b Bus, group string, m Message, cause error) error {
	fields := make(map[string]interface{}, len(m.Fields)+3)
	for k, v := range m.Fields {
		fields[k] = v
	}
	fields["_error"] = cause.Error()
	fields["_source_id"] = m.ID
	fields["_group"] = group
	_, err := b.Publish(ctx, topics.DLQ(m.Stream), fields)
	return err
}

func (l *Loop) reclaimDue() bool {
	if l.ReclaimMinIdle <= 0 {
		return false
	}
	every := l.ReclaimEvery
	if every <= 0 {
		every = l.ReclaimMinIdle
	}
	return l.lastReclaim.IsZero() || time.Since(l.lastReclaim) >= every
}

func (l *Loop) count() int64 {
	if l.Count <= 0 {
		return 10
	}
	return l.Count
}

func (l *Loop) backoff() time.Duration {
	if l.Backoff <= 0 {
		return time.Second
	}
	return l.Backoff
}

func (l *Loop) onError(stage string) {
	if l.OnError != nil {
		l.OnError(stage)
	}
}
