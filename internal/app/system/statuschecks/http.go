// internal/app/system/statuschecks/http.go
package statuschecks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/reviewhub/internal/domain/models"
	"golang.org/x/oauth2/clientcredentials"
)

// HTTPConfig configures an external CI status endpoint protected by the
// OAuth2 client-credentials grant.
type HTTPConfig struct {
	// BaseURL is the CI API root. States are read from
	// {BaseURL}/pull-requests/{id}/statuses.
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	Timeout      time.Duration
}

// HTTPProvider fetches states from an external CI service.
type HTTPProvider struct {
	base   string
	client *http.Client
}

// NewHTTPProvider builds an HTTPProvider. When ClientID is empty requests are
// sent without credentials.
func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("status provider: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("status provider: invalid base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	if cfg.ClientID != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		client = cc.Client(context.Background())
		client.Timeout = timeout
	}
	return &HTTPProvider{base: strings.TrimRight(cfg.BaseURL, "/"), client: client}, nil
}

type remoteStatus struct {
	Context string `json:"context"`
	State   string `json:"state"`
}

func (p *HTTPProvider) Passing(ctx context.Context, pr models.PullRequest, contexts []string) (map[string]bool, error) {
	endpoint := fmt.Sprintf("%s/pull-requests/%s/statuses", p.base, pr.ID.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrUnavailable, resp.StatusCode)
	}

	var remote []remoteStatus
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	states := make(map[string]string, len(remote))
	for _, s := range remote {
		states[s.Context] = strings.ToLower(s.State)
	}
	return passingFrom(states, contexts), nil
}
