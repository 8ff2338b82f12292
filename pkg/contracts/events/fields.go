package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Fields é o formato plano de uma entrada de stream: campo -> valor string
type Fields = map[string]interface{}

var ErrMissingField = errors.New("missing field")

func str(f Fields, key string) (string, error) {
	v, ok := f[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return fmt.Sprint(t), nil
	}
}

func optStr(f Fields, key string) string {
	s, _ := str(f, key)
	return s
}

func jsonField(f Fields, key string, out any) error {
	s, err := str(f, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// Millis serializa o instante como epoch em milissegundos
func Millis(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func parseMillis(f Fields, key string) (time.Time, error) {
	s, err := str(f, key)
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
