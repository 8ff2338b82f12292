package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// LiveEvent é publicado em "live_events" (gol, cartão, substituição...)
type LiveEvent struct {
	FixtureID string          `json:"fixtureId"`
	Type      string          `json:"type"`
	Key       string          `json:"key,omitempty"` // identidade do lance na partida
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func (e LiveEvent) ToFields() Fields {
	data := e.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	f := Fields{
		"fixtureId": e.FixtureID,
		"type":      e.Type,
		"timestamp": Millis(e.Timestamp),
		"data":      string(data),
	}
	if e.Key != "" {
		f["key"] = e.Key
	}
	return f
}

func ParseLiveEvent(f Fields) (LiveEvent, error) {
	var e LiveEvent
	var err error
	if e.FixtureID, err = str(f, "fixtureId"); err != nil {
		return e, err
	}
	if e.Type, err = str(f, "type"); err != nil {
		return e, err
	}
	if e.Timestamp, err = parseMillis(f, "timestamp"); err != nil {
		return e, err
	}
	e.Key = optStr(f, "key")
	if s := optStr(f, "data"); s != "" {
		if !json.Valid([]byte(s)) {
			return e, fmt.Errorf("decode data: invalid json")
		}
		e.Data = json.RawMessage(s)
	}
	return e, nil
}

// DepthLevel é um nível do livro (preço, volume disponível)
type DepthLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

type OddsValue struct {
	Selection string       `json:"selection"`
	Odds      float64      `json:"odds"`
	Depth     []DepthLevel `json:"depth,omitempty"`
}

// LiveOdds é publicado em "live_odds", uma entrada por (bookmaker, mercado)
type LiveOdds struct {
	FixtureID string      `json:"fixtureId"`
	Bookmaker string      `json:"bookmaker"`
	Market    string      `json:"market"`
	Values    []OddsValue `json:"values"`
	Timestamp time.Time   `json:"timestamp"`
}

func (o LiveOdds) ToFields() Fields {
	return Fields{
		"fixtureId": o.FixtureID,
		"bookmaker": o.Bookmaker,
		"market":    o.Market,
		"values":    mustJSON(o.Values),
		"timestamp": Millis(o.Timestamp),
	}
}

func ParseLiveOdds(f Fields) (LiveOdds, error) {
	var o LiveOdds
	var err error
	if o.FixtureID, err = str(f, "fixtureId"); err != nil {
		return o, err
	}
	if o.Bookmaker, err = str(f, "bookmaker"); err != nil {
		return o, err
	}
	if o.Market, err = str(f, "market"); err != nil {
		return o, err
	}
	if err = jsonField(f, "values", &o.Values); err != nil {
		return o, err
	}
	if o.Timestamp, err = parseMillis(f, "timestamp"); err != nil {
		return o, err
	}
	return o, nil
}
