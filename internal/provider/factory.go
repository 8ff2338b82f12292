package provider

import (
	"fmt"
	"net/http"
	"strings"
)

// Kind é o conjunto fechado de provedores suportados
type Kind string

const (
	KindMock        Kind = "mock"
	KindAPIFootball Kind = "api-football"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMock, KindAPIFootball:
		return k, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

type Options struct {
	APIKey     string
	BaseURL    string
	RatePerSec float64
	HTTPClient *http.Client
}

// New cria o provedor do tipo pedido
func New(kind Kind, opts Options) (Provider, error) {
	switch kind {
	case KindMock:
		return NewMock(), nil
	case KindAPIFootball:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("api-football: api key not provided")
		}
		return NewAPIFootball(opts), nil
	}
	return nil, fmt.Errorf("unknown provider %q", kind)
}
