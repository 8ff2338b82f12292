package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

// Key identifica uma entidade externa: (provedor, id externo, tipo)
type Key struct {
	Provider   string
	ExternalID string
	Entity     domain.EntityType
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Provider, k.Entity, k.ExternalID)
}

// Querier é o subconjunto de *sql.Tx usado por CreateFunc
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateFunc materializa a entidade interna (ou encontra pela chave natural)
// dentro da mesma transação que grava o mapeamento. Devolve o id interno.
type CreateFunc func(ctx context.Context, q Querier) (string, error)

// Store persiste os mapeamentos
type Store interface {
	// Get devolve domain.ErrNotFound quando não há mapeamento
	Get(ctx context.Context, key Key) (string, error)
	// Create serializa por chave, re-verifica, executa create e grava o mapeamento.
	// Conflito de unicidade vira domain.ErrDuplicateMapping.
	Create(ctx context.Context, key Key, create CreateFunc) (string, error)
	ExternalID(ctx context.Context, provider string, entity domain.EntityType, internalID string) (string, error)
}

// Reconciler traduz ids externos em ids internos sem duplicar entidades
type Reconciler struct {
	Store      Store
	Log        *zap.Logger
	MaxRetries int

	group singleflight.Group
}

func New(store Store, log *zap.Logger) *Reconciler {
	return &Reconciler{Store: store, Log: log, MaxRetries: 3}
}

// Resolve devolve o id interno do par (provedor, id externo, tipo), criando
// entidade e mapeamento na primeira vez. Resoluções concorrentes da mesma chave
// produzem um único id interno.
func (r *Reconciler) Resolve(ctx context.Context, provider, externalID string, entity domain.EntityType, create CreateFunc) (string, error) {
	key := Key{Provider: provider, ExternalID: externalID, Entity: entity}

	id, err := r.Store.Get(ctx, key)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("lookup %s: %w", key, err)
	}

	v, err, _ := r.group.Do(key.String(), func() (interface{}, error) {
		return r.create(ctx, key, create)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Reconciler) create(ctx context.Context, key Key, create CreateFunc) (string, error) {
	for attempt := 0; ; attempt++ {
		id, err := r.Store.Create(ctx, key, create)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrDuplicateMapping) || attempt >= r.MaxRetries {
			return "", fmt.Errorf("create %s: %w", key, err)
		}

		// outro processo gravou primeiro: o vencedor é relido
		r.Log.Debug("mapping created concurrently, re-reading", zap.String("key", key.String()))
		id, gerr := r.Store.Get(ctx, key)
		if gerr == nil {
			return id, nil
		}
		if !errors.Is(gerr, domain.ErrNotFound) {
			return "", fmt.Errorf("lookup %s: %w", key, gerr)
		}
	}
}

// Lookup resolve sem criar. Ausência vira domain.ErrDependencyMissing
// (ex.: time de um jogo cuja liga ainda não foi sincronizada).
func (r *Reconciler) Lookup(ctx context.Context, provider, externalID string, entity domain.EntityType) (string, error) {
	key := Key{Provider: provider, ExternalID: externalID, Entity: entity}
	id, err := r.Store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", domain.ErrDependencyMissing, key)
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", key, err)
	}
	return id, nil
}

// ExternalID faz o caminho inverso: id interno -> id do provedor
func (r *Reconciler) ExternalID(ctx context.Context, provider string, entity domain.EntityType, internalID string) (string, error) {
	return r.Store.ExternalID(ctx, provider, entity, internalID)
}
