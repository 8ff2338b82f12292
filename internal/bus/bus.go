package bus

import (
	"context"
	"time"
)

// Message é uma entrada lida de um stream
type Message struct {
	ID     string
	Stream string
	Fields map[string]interface{}
}

// Bus é o log de mensagens particionado por stream, com grupos de consumo.
// Entrega pelo menos uma vez: mensagens lidas e não confirmadas ficam pendentes
// e podem ser reclamadas por outro consumidor do mesmo grupo.
type Bus interface {
	Publish(ctx context.Context, stream string, fields map[string]interface{}) (string, error)
	// CreateGroup é idempotente: grupo existente não é erro
	CreateGroup(ctx context.Context, stream, group string) error
	// ReadGroup bloqueia até block por mensagens novas; timeout devolve lote vazio
	ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]Message, error)
	// Ack é idempotente
	Ack(ctx context.Context, stream, group string, ids ...string) error
	// Claim transfere para consumer as pendentes ociosas há mais de minIdle
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]Message, error)
}
