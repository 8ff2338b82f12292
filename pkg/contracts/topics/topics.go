package topics

const (
	// Streams (Redis Streams)
	PredictionTasks = "prediction_tasks"
	LiveEvents      = "live_events"
	LiveOdds        = "live_odds"
	LivePredictions = "live_predictions"
	LiveSignals     = "live_signals"

	// Consumer groups
	GroupPersistor        = "persistor_group"
	GroupBroadcast        = "api_broadcast_group"
	GroupPredictionWorker = "prediction_worker_group"

	// Kafka
	BetSettled = "bet_settled"

	// Redis Pub/Sub
	ChannelBroadcast  = "live_broadcast"
	ChannelSettlement = "settlement_trigger"
)

// DLQ devolve o nome do stream de mensagens descartadas de um stream
func DLQ(stream string) string { return stream + "_dlq" }

// FixtureTopic é o tópico de fan-out de uma partida
func FixtureTopic(fixtureID string) string { return "fixture:" + fixtureID }

// GlobalTopic recebe os sinais de todas as partidas
const GlobalTopic = "global"
