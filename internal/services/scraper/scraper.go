package scraper

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
)

// Service implements the JobScraper interface against the gig platform.
type Service struct {
	client   *Client
	jobsPath string
	logger   arbor.ILogger
}

// NewService creates a scraper from the platform configuration.
func NewService(cfg *common.PlatformConfig, logger arbor.ILogger) *Service {
	client := NewClient(cfg.BaseURL, logger,
		WithUserAgent(cfg.UserAgent),
		WithTimeout(common.Duration(cfg.RequestTimeout)),
		WithRequestInterval(common.Duration(cfg.RateLimit)),
	)
	return NewServiceWithClient(client, cfg.JobsPath, logger)
}

// NewServiceWithClient wires an explicit client, used by tests and by
// collaborators that share the platform client.
func NewServiceWithClient(client *Client, jobsPath string, logger arbor.ILogger) *Service {
	return &Service{
		client:   client,
		jobsPath: jobsPath,
		logger:   logger,
	}
}

// SearchJobs fetches and parses the current listing page.
func (s *Service) SearchJobs(ctx context.Context) ([]*models.JobListing, error) {
	body, err := s.client.Get(ctx, s.jobsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	listings := parseListingPage(doc, s.client.BaseURL())
	s.logger.Info().
		Int("listings", len(listings)).
		Msg("Scraped job listings")

	return listings, nil
}

// FetchJobDetail loads the full description for one listing.
func (s *Service) FetchJobDetail(ctx context.Context, listing *models.JobListing) (*models.JobListing, error) {
	if listing == nil || listing.URL == "" {
		return nil, fmt.Errorf("listing URL is required")
	}

	path := listing.URL
	if base := s.client.BaseURL(); len(path) > len(base) && path[:len(base)] == base {
		path = path[len(base):]
	}

	body, err := s.client.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job detail %s: %w", listing.ID, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse job detail %s: %w", listing.ID, err)
	}

	detailed := parseDetailPage(doc, listing)
	s.logger.Debug().
		Str("job_id", detailed.ID).
		Int("description_length", len(detailed.Description)).
		Msg("Fetched job detail")

	return detailed, nil
}

// guard that Service satisfies the collaborator contract
var _ interfaces.JobScraper = (*Service)(nil)
