package domain

import (
	"fmt"
	"strings"
)

type MarketType string

const (
	Market1X2             MarketType = "1X2"
	MarketOverUnder25     MarketType = "OVER_UNDER_2.5"
	MarketBothTeamsScore  MarketType = "BOTH_TEAMS_SCORE"
	MarketHomeOverUnder15 MarketType = "HOME_OVER_UNDER_1.5"
	MarketAwayOverUnder15 MarketType = "AWAY_OVER_UNDER_1.5"
)

type Selection string

const (
	SelHome  Selection = "HOME"
	SelDraw  Selection = "DRAW"
	SelAway  Selection = "AWAY"
	SelOver  Selection = "OVER"
	SelUnder Selection = "UNDER"
	SelYes   Selection = "YES"
	SelNo    Selection = "NO"
)

// Markets lista os mercados suportados, na ordem de exibição
var Markets = []MarketType{
	Market1X2,
	MarketOverUnder25,
	MarketBothTeamsScore,
	MarketHomeOverUnder15,
	MarketAwayOverUnder15,
}

// Selections devolve as seleções válidas de um mercado
func (m MarketType) Selections() []Selection {
	switch m {
	case Market1X2:
		return []Selection{SelHome, SelDraw, SelAway}
	case MarketOverUnder25, MarketHomeOverUnder15, MarketAwayOverUnder15:
		return []Selection{SelOver, SelUnder}
	case MarketBothTeamsScore:
		return []Selection{SelYes, SelNo}
	}
	return nil
}

func (m MarketType) Valid() bool { return m.Selections() != nil }

func (m MarketType) Has(s Selection) bool {
	for _, v := range m.Selections() {
		if v == s {
			return true
		}
	}
	return false
}

func overUnder(goals int, line float64) Selection {
	if float64(goals) > line {
		return SelOver
	}
	return SelUnder
}

// Outcome devolve a seleção vencedora do mercado para o placar final
func Outcome(m MarketType, s Score) (Selection, error) {
	switch m {
	case Market1X2:
		switch {
		case s.Home > s.Away:
			return SelHome, nil
		case s.Home < s.Away:
			return SelAway, nil
		default:
			return SelDraw, nil
		}
	case MarketOverUnder25:
		return overUnder(s.Home+s.Away, 2.5), nil
	case MarketBothTeamsScore:
		if s.Home > 0 && s.Away > 0 {
			return SelYes, nil
		}
		return SelNo, nil
	case MarketHomeOverUnder15:
		return overUnder(s.Home, 1.5), nil
	case MarketAwayOverUnder15:
		return overUnder(s.Away, 1.5), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMarket, m)
}

// IsCorrect é total sobre (mercado, seleção): combinações desconhecidas retornam erro
func IsCorrect(m MarketType, sel Selection, s Score) (bool, error) {
	if !m.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownMarket, m)
	}
	if !m.Has(sel) {
		return false, fmt.Errorf("%w: %q in %s", ErrUnknownOutcome, sel, m)
	}
	won, err := Outcome(m, s)
	if err != nil {
		return false, err
	}
	return won == sel, nil
}

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Normalize traduz o par (nome de mercado, valor) do provedor ou do oráculo
// para o enum interno. ok=false para mercados/linhas não suportados.
func Normalize(market, value string) (MarketType, Selection, bool) {
	m, v := norm(market), norm(value)

	switch m {
	case "1x2", "match winner", "fulltime result", "full time result", "match result", "h2h":
		switch v {
		case "home", "1", "home win":
			return Market1X2, SelHome, true
		case "draw", "x":
			return Market1X2, SelDraw, true
		case "away", "2", "away win":
			return Market1X2, SelAway, true
		}
	case "over under 2.5", "goals over/under", "over/under", "total goals":
		return lineSelection(MarketOverUnder25, m, v, "2.5")
	case "both teams score", "both teams to score", "btts":
		switch v {
		case "yes":
			return MarketBothTeamsScore, SelYes, true
		case "no":
			return MarketBothTeamsScore, SelNo, true
		}
	case "home over under 1.5", "total home", "home team goals over/under", "home team total goals":
		return lineSelection(MarketHomeOverUnder15, m, v, "1.5")
	case "away over under 1.5", "total away", "away team goals over/under", "away team total goals":
		return lineSelection(MarketAwayOverUnder15, m, v, "1.5")
	}
	return "", "", false
}

// lineSelection aceita "over"/"under" quando o nome do mercado já fixa a linha,
// ou "over 2.5"/"under 2.5" quando a linha vem no valor
func lineSelection(mt MarketType, market, value, line string) (MarketType, Selection, bool) {
	fixed := strings.HasSuffix(market, line)
	parts := strings.Fields(value)
	if len(parts) == 0 {
		return "", "", false
	}
	if len(parts) == 1 && !fixed {
		return "", "", false
	}
	if len(parts) == 2 && parts[1] != line {
		return "", "", false
	}
	if len(parts) > 2 {
		return "", "", false
	}
	switch parts[0] {
	case "over":
		return mt, SelOver, true
	case "under":
		return mt, SelUnder, true
	}
	return "", "", false
}
