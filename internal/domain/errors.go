package domain

import "errors"

// Taxonomia de erros do pipeline. Falhas por item são isoladas:
// o item é registrado em log e pulado, o laço continua.
var (
	// ErrDependencyMissing: entidade pai (liga, time) sem mapeamento interno
	ErrDependencyMissing = errors.New("dependency missing")
	// ErrProviderUnavailable: provedor externo falhou após as retentativas
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrOracleUnavailable: serviço de scoring indisponível
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrSettlementConflict: partida encerrada com placar ausente ou inconsistente
	ErrSettlementConflict = errors.New("settlement conflict")
	// ErrDuplicateMapping: violação de unicidade ao criar mapeamento (resolvido com nova leitura)
	ErrDuplicateMapping = errors.New("duplicate mapping")

	ErrNotFound       = errors.New("not found")
	ErrUnknownMarket  = errors.New("unknown market")
	ErrUnknownOutcome = errors.New("unknown selection")
)
