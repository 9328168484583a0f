package gateway

import (
	"net/http"
	"sort"

	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
)

// Registry resolves provider clients by name. Providers without credentials
// are simply not registered.
type Registry struct {
	clients map[payments.Provider]payments.ProviderClient
}

func NewRegistry(clients ...payments.ProviderClient) *Registry {
	r := &Registry{clients: make(map[payments.Provider]payments.ProviderClient, len(clients))}
	for _, c := range clients {
		r.clients[c.Provider()] = c
	}
	return r
}

func (r *Registry) Get(p payments.Provider) (payments.ProviderClient, error) {
	c, ok := r.clients[p]
	if !ok {
		return nil, payments.ErrUnsupportedProvider
	}
	return c, nil
}

// Acknowledger returns the provider's own acknowledger, or a generic JSON
// one for providers that do not define a shape.
func (r *Registry) Acknowledger(p payments.Provider) payments.Acknowledger {
	if c, ok := r.clients[p]; ok {
		if a, ok := c.(payments.Acknowledger); ok {
			return a
		}
	}
	return jsonAck{}
}

func (r *Registry) Providers() []payments.Provider {
	out := make([]payments.Provider, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type jsonAck struct{}

func (jsonAck) Acknowledge(outcome payments.Outcome) (int, any) {
	status := http.StatusOK
	switch outcome {
	case payments.OutcomeInvalidSignature, payments.OutcomeAmountMismatch:
		status = http.StatusBadRequest
	case payments.OutcomeError:
		status = http.StatusInternalServerError
	}
	return status, map[string]string{"outcome": string(outcome)}
}
