// internal/app/system/statuschecks/provider.go
// Package statuschecks supplies the pass/fail state of required status
// contexts to the merge policy. Providers are swappable; the policy never
// knows where a state came from.
package statuschecks

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrUnavailable is returned when the provider cannot report states. Callers
// treat it as every required context failing.
var ErrUnavailable = errors.New("status check provider unavailable")

// Provider reports whether each requested context is passing for a pull
// request. Contexts the provider has never heard of are reported false.
type Provider interface {
	Passing(ctx context.Context, pr models.PullRequest, contexts []string) (map[string]bool, error)
}

// StateSource returns the latest state per context for a pull request.
// The status_checks store satisfies it.
type StateSource interface {
	States(ctx context.Context, prID primitive.ObjectID) (map[string]string, error)
}

// StoreProvider reads states reported through the status-check API.
type StoreProvider struct {
	src StateSource
}

// NewStoreProvider returns a provider backed by src.
func NewStoreProvider(src StateSource) *StoreProvider {
	return &StoreProvider{src: src}
}

func (p *StoreProvider) Passing(ctx context.Context, pr models.PullRequest, contexts []string) (map[string]bool, error) {
	states, err := p.src.States(ctx, pr.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return passingFrom(states, contexts), nil
}

// Unavailable is the provider used when no status source is configured. It
// always fails, so rules requiring contexts block until one is configured.
type Unavailable struct{}

func (Unavailable) Passing(context.Context, models.PullRequest, []string) (map[string]bool, error) {
	return nil, ErrUnavailable
}

func passingFrom(states map[string]string, contexts []string) map[string]bool {
	out := make(map[string]bool, len(contexts))
	for _, c := range contexts {
		out[c] = states[c] == models.CheckSuccess
	}
	return out
}
