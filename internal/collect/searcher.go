package collect

import (
	"context"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
	"github.com/sells-group/prospector/pkg/search"
)

// Searcher runs one search and returns candidate records.
type Searcher interface {
	Search(ctx context.Context, cfg model.SearchConfig) ([]model.Record, error)
}

// ProviderSearcher adapts the search API client, guarded by a circuit breaker.
type ProviderSearcher struct {
	client  search.Client
	breaker *resilience.CircuitBreaker
}

// NewProviderSearcher creates a ProviderSearcher. breaker may be nil.
func NewProviderSearcher(client search.Client, breaker *resilience.CircuitBreaker) *ProviderSearcher {
	return &ProviderSearcher{client: client, breaker: breaker}
}

// Search implements Searcher.
func (s *ProviderSearcher) Search(ctx context.Context, cfg model.SearchConfig) ([]model.Record, error) {
	q := search.Query{
		Keywords:        cfg.Keywords,
		Industry:        cfg.Industry,
		Title:           cfg.Title,
		Organization:    cfg.Organization,
		Location:        cfg.Location,
		ConnectionLevel: cfg.ConnectionLevel,
		Limit:           cfg.MaxResults,
	}

	call := func(ctx context.Context) (*search.Result, error) { return s.client.Search(ctx, q) }
	var (
		res *search.Result
		err error
	)
	if s.breaker != nil {
		res, err = resilience.ExecuteVal(ctx, s.breaker, call)
	} else {
		res, err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	profiles := res.Profiles
	if cfg.MaxResults > 0 && len(profiles) > cfg.MaxResults {
		profiles = profiles[:cfg.MaxResults]
	}
	out := make([]model.Record, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, profileToRecord(p, cfg))
	}
	return out, nil
}

func profileToRecord(p search.Profile, cfg model.SearchConfig) model.Record {
	industry := p.Industry
	if industry == "" {
		industry = cfg.Industry
	}
	return model.Record{
		ExternalKey:     p.URL,
		Name:            p.Name,
		Title:           p.Headline,
		Organization:    p.Company,
		Location:        p.Location,
		Email:           model.StringPtr(p.Email),
		Phone:           model.StringPtr(p.Phone),
		Industry:        industry,
		ConnectionLevel: p.ConnectionLevel,
		Summary:         p.Summary,
		Experience:      string(p.Experience),
		Education:       string(p.Education),
		Skills:          string(p.Skills),
		Source:          "search",
	}
}
