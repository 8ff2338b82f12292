package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type sweeper interface {
	Sweep(ctx context.Context) (Report, error)
}

// Runner executa o sweep em intervalo fixo e sob demanda.
// Sweeps nunca se sobrepõem: pedidos durante um sweep viram no máximo um sweep seguinte.
type Runner struct {
	Engine   sweeper
	Log      *zap.Logger
	Interval time.Duration

	OnReport func(Report) // métricas

	trigger chan struct{}
	mu      sync.RWMutex
	last    *Report
}

func NewRunner(engine sweeper, log *zap.Logger, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Runner{Engine: engine, Log: log, Interval: interval, trigger: make(chan struct{}, 1)}
}

// Trigger agenda um sweep sem bloquear; false se já havia um agendado
func (r *Runner) Trigger() bool {
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// LastReport devolve o resultado do último sweep concluído
func (r *Runner) LastReport() (Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

// Run faz um sweep inicial e segue até o contexto ser cancelado
func (r *Runner) Run(ctx context.Context) error {
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.sweep(ctx)
		case <-r.trigger:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	rep, err := r.Engine.Sweep(ctx)
	if err != nil {
		r.Log.Error("settlement sweep failed", zap.String("run_id", rep.RunID), zap.Error(err))
		return
	}
	r.mu.Lock()
	r.last = &rep
	r.mu.Unlock()
	if r.OnReport != nil {
		r.OnReport(rep)
	}
}

// Subscribe dispara um sweep a cada mensagem no canal (ex.: partida encerrada no sync).
// Retorna depois que a inscrição foi confirmada pelo Redis.
func (r *Runner) Subscribe(ctx context.Context, rdb *redis.Client, channel string) error {
	sub := rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.Log.Debug("settlement trigger received", zap.String("fixture_id", msg.Payload))
				r.Trigger()
			}
		}
	}()
	return nil
}
