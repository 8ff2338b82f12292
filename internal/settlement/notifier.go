package settlement

import (
	"context"
	"encoding/json"

	"github.com/radieske/sports-prediction-pipeline/internal/shared/kafka"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
)

// KafkaNotifier emite BetSettled no tópico bet_settled, chaveado pela aposta
type KafkaNotifier struct {
	W *kafka.Writer
}

func (n *KafkaNotifier) BetSettled(ctx context.Context, e events.BetSettled) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, n.W, e.BetID, b)
}
