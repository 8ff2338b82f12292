package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

const (
	APIFootballName    = "api-football"
	defaultAPIFootball = "https://v3.football.api-sports.io"

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// APIFootball é o adaptador HTTP da API-Football v3 com rate limiting e retries
type APIFootball struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	limiter   *rate.Limiter
	retryWait time.Duration
}

func NewAPIFootball(opts Options) *APIFootball {
	base := opts.BaseURL
	if base == "" {
		base = defaultAPIFootball
	}
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &APIFootball{
		http:      hc,
		baseURL:   base,
		apiKey:    opts.APIKey,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		retryWait: baseRetryWait,
	}
}

func (c *APIFootball) Name() string { return APIFootballName }

type envelope struct {
	Errors   json.RawMessage `json:"errors"`
	Response json.RawMessage `json:"response"`
}

// get faz um GET com rate limiting e retries; decodifica "response" em out
func (c *APIFootball) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var env envelope
	if err := c.doWithRetry(ctx, u, &env); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, path, err)
	}
	if apiErr := apiErrors(env.Errors); apiErr != "" {
		return fmt.Errorf("%w: %s: %s", domain.ErrProviderUnavailable, path, apiErr)
	}
	if len(env.Response) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// apiErrors: a API devolve "errors" como [] ou {} vazios quando não há erro
func apiErrors(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []any
	if json.Unmarshal(raw, &list) == nil {
		if len(list) == 0 {
			return ""
		}
		return string(raw)
	}
	var obj map[string]any
	if json.Unmarshal(raw, &obj) == nil && len(obj) == 0 {
		return ""
	}
	return string(raw)
}

// doWithRetry: backoff exponencial em erro de rede, 429 e 5xx
func (c *APIFootball) doWithRetry(ctx context.Context, u string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("x-apisports-key", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("http %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *APIFootball) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

type idName struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo"`
}

func itoa(id int) string { return strconv.Itoa(id) }

func (c *APIFootball) GetLeagues(ctx context.Context) ([]League, error) {
	var rows []struct {
		League  idName `json:"league"`
		Country struct {
			Name string `json:"name"`
		} `json:"country"`
	}
	if err := c.get(ctx, "/leagues", url.Values{"current": {"true"}}, &rows); err != nil {
		return nil, err
	}
	out := make([]League, 0, len(rows))
	for _, r := range rows {
		out = append(out, League{ExternalID: itoa(r.League.ID), Name: r.League.Name, Country: r.Country.Name, Logo: r.League.Logo})
	}
	return out, nil
}

func (c *APIFootball) GetTeams(ctx context.Context, leagueID string, season int) ([]Team, error) {
	var rows []struct {
		Team struct {
			idName
			Country string `json:"country"`
		} `json:"team"`
	}
	q := url.Values{"league": {leagueID}, "season": {itoa(season)}}
	if err := c.get(ctx, "/teams", q, &rows); err != nil {
		return nil, err
	}
	out := make([]Team, 0, len(rows))
	for _, r := range rows {
		out = append(out, Team{ExternalID: itoa(r.Team.ID), Name: r.Team.Name, Country: r.Team.Country, Logo: r.Team.Logo})
	}
	return out, nil
}

type fixtureRow struct {
	Fixture struct {
		ID     int       `json:"id"`
		Date   time.Time `json:"date"`
		Status struct {
			Short   string `json:"short"`
			Elapsed *int   `json:"elapsed"`
		} `json:"status"`
	} `json:"fixture"`
	League idName `json:"league"`
	Teams  struct {
		Home idName `json:"home"`
		Away idName `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

func (r fixtureRow) toFixture() Fixture {
	st, ok := domain.ParseProviderStatus(r.Fixture.Status.Short)
	if !ok {
		st = domain.StatusScheduled
	}
	f := Fixture{
		ExternalID:  itoa(r.Fixture.ID),
		LeagueID:    itoa(r.League.ID),
		HomeTeamID:  itoa(r.Teams.Home.ID),
		AwayTeamID:  itoa(r.Teams.Away.ID),
		Kickoff:     r.Fixture.Date.UTC(),
		StatusShort: r.Fixture.Status.Short,
		Status:      st,
		HomeGoals:   r.Goals.Home,
		AwayGoals:   r.Goals.Away,
	}
	if r.Fixture.Status.Elapsed != nil {
		f.Elapsed = *r.Fixture.Status.Elapsed
	}
	return f
}

func (c *APIFootball) GetFixtures(ctx context.Context, leagueID string, season int) ([]Fixture, error) {
	var rows []fixtureRow
	q := url.Values{"league": {leagueID}, "season": {itoa(season)}}
	if err := c.get(ctx, "/fixtures", q, &rows); err != nil {
		return nil, err
	}
	out := make([]Fixture, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toFixture())
	}
	return out, nil
}

func (c *APIFootball) GetOdds(ctx context.Context, fixtureID string) ([]Odds, error) {
	var rows []struct {
		Update     time.Time `json:"update"`
		Bookmakers []struct {
			Name string `json:"name"`
			Bets []struct {
				Name   string `json:"name"`
				Values []struct {
					Value json.RawMessage `json:"value"`
					Odd   string          `json:"odd"`
				} `json:"values"`
			} `json:"bets"`
		} `json:"bookmakers"`
	}
	if err := c.get(ctx, "/odds", url.Values{"fixture": {fixtureID}}, &rows); err != nil {
		return nil, err
	}

	var out []Odds
	for _, r := range rows {
		for _, bk := range r.Bookmakers {
			for _, bet := range bk.Bets {
				o := Odds{FixtureID: fixtureID, Bookmaker: bk.Name, Market: bet.Name, UpdatedAt: r.Update.UTC()}
				for _, v := range bet.Values {
					price, err := strconv.ParseFloat(v.Odd, 64)
					if err != nil || price <= 1 {
						continue
					}
					o.Values = append(o.Values, OddsValue{Selection: rawString(v.Value), Odds: price})
				}
				if len(o.Values) > 0 {
					out = append(out, o)
				}
			}
		}
	}
	return out, nil
}

// rawString aceita valores string ou numéricos ("Home", 1)
func rawString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

func (c *APIFootball) GetEvents(ctx context.Context, fixtureID string) ([]Event, error) {
	var rows []struct {
		Time struct {
			Elapsed int  `json:"elapsed"`
			Extra   *int `json:"extra"`
		} `json:"time"`
		Team   idName `json:"team"`
		Player struct {
			Name string `json:"name"`
		} `json:"player"`
		Type     string `json:"type"`
		Detail   string `json:"detail"`
		Comments string `json:"comments"`
	}
	if err := c.get(ctx, "/fixtures/events", url.Values{"fixture": {fixtureID}}, &rows); err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		e := Event{
			FixtureID: fixtureID,
			Type:      r.Type,
			Detail:    r.Detail,
			TeamID:    itoa(r.Team.ID),
			Player:    r.Player.Name,
			Elapsed:   r.Time.Elapsed,
			Comments:  r.Comments,
		}
		if r.Time.Extra != nil {
			e.Extra = *r.Time.Extra
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *APIFootball) GetStats(ctx context.Context, fixtureID string) ([]Stat, error) {
	var rows []struct {
		Team       idName `json:"team"`
		Statistics []struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"statistics"`
	}
	if err := c.get(ctx, "/fixtures/statistics", url.Values{"fixture": {fixtureID}}, &rows); err != nil {
		return nil, err
	}
	var out []Stat
	for _, r := range rows {
		for _, s := range r.Statistics {
			v := rawString(s.Value)
			if v == "null" {
				v = ""
			}
			out = append(out, Stat{TeamID: itoa(r.Team.ID), Type: s.Type, Value: v})
		}
	}
	return out, nil
}

type playerRow struct {
	Player struct {
		ID     int    `json:"id"`
		Name   string `json:"name"`
		Number int    `json:"number"`
		Pos    string `json:"pos"`
	} `json:"player"`
}

func toPlayers(rows []playerRow) []Player {
	out := make([]Player, 0, len(rows))
	for _, p := range rows {
		out = append(out, Player{ExternalID: itoa(p.Player.ID), Name: p.Player.Name, Number: p.Player.Number, Position: p.Player.Pos})
	}
	return out
}

func (c *APIFootball) GetLineups(ctx context.Context, fixtureID string) ([]Lineup, error) {
	var rows []struct {
		Team        idName      `json:"team"`
		Formation   string      `json:"formation"`
		StartXI     []playerRow `json:"startXI"`
		Substitutes []playerRow `json:"substitutes"`
	}
	if err := c.get(ctx, "/fixtures/lineups", url.Values{"fixture": {fixtureID}}, &rows); err != nil {
		return nil, err
	}
	out := make([]Lineup, 0, len(rows))
	for _, r := range rows {
		out = append(out, Lineup{
			TeamID:      itoa(r.Team.ID),
			Formation:   r.Formation,
			StartXI:     toPlayers(r.StartXI),
			Substitutes: toPlayers(r.Substitutes),
		})
	}
	return out, nil
}

func (c *APIFootball) GetInjuries(ctx context.Context, fixtureID string) ([]Injury, error) {
	var rows []struct {
		Player struct {
			Name   string `json:"name"`
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"player"`
		Team idName `json:"team"`
	}
	if err := c.get(ctx, "/injuries", url.Values{"fixture": {fixtureID}}, &rows); err != nil {
		return nil, err
	}
	out := make([]Injury, 0, len(rows))
	for _, r := range rows {
		out = append(out, Injury{TeamID: itoa(r.Team.ID), Player: r.Player.Name, Type: r.Player.Type, Reason: r.Player.Reason})
	}
	return out, nil
}
