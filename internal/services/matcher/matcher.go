package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
)

const systemPrompt = `You evaluate gig-work listings for an automated worker skilled in
data entry, web research, content writing, translation (Japanese/English),
spreadsheet processing and document conversion.
Respond with a single JSON object:
{"should_apply": bool, "score": 0.0-1.0, "reason": "...", "proposal": "short application message in the listing's language"}`

// capabilityKeywords drive the heuristic fallback when no LLM provider
// is configured.
var capabilityKeywords = []string{
	"data entry", "データ入力",
	"writing", "ライティング", "記事",
	"translation", "翻訳",
	"research", "リサーチ", "調査",
	"excel", "spreadsheet", "スプレッドシート",
	"transcription", "文字起こし",
}

// Service implements the JobMatcher interface. With an LLM configured it
// scores listings via chat completion; without one it falls back to a
// keyword-and-payment heuristic.
type Service struct {
	llm        interfaces.LLMService // nil when provider is "none"
	minPayment float64
	logger     arbor.ILogger
}

func NewService(llm interfaces.LLMService, cfg *common.PlatformConfig, logger arbor.ILogger) *Service {
	return &Service{
		llm:        llm,
		minPayment: cfg.MinPayment,
		logger:     logger,
	}
}

// AnalyzeJobMatch scores a listing and decides whether to apply.
func (s *Service) AnalyzeJobMatch(ctx context.Context, listing *models.JobListing) (*models.MatchResult, error) {
	if listing == nil {
		return nil, fmt.Errorf("listing is required")
	}

	// Payment floor applies in both modes; below it there is nothing to
	// score.
	if listing.Payment > 0 && listing.Payment < s.minPayment {
		s.logger.Debug().
			Str("job_id", listing.ID).
			Float64("payment", listing.Payment).
			Float64("min_payment", s.minPayment).
			Msg("Listing below payment floor")
		return &models.MatchResult{
			ShouldApply: false,
			Score:       0,
			Reason:      fmt.Sprintf("payment %.0f below minimum %.0f", listing.Payment, s.minPayment),
		}, nil
	}

	if s.llm == nil {
		return s.heuristicMatch(listing), nil
	}

	result, err := s.llmMatch(ctx, listing)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_id", listing.ID).
			Msg("LLM match failed, falling back to heuristic")
		return s.heuristicMatch(listing), nil
	}
	return result, nil
}

func (s *Service) llmMatch(ctx context.Context, listing *models.JobListing) (*models.MatchResult, error) {
	messages := []interfaces.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildListingPrompt(listing)},
	}

	response, err := s.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("match completion failed: %w", err)
	}

	result, err := parseMatchResponse(response)
	if err != nil {
		return nil, fmt.Errorf("unparseable match response: %w", err)
	}

	s.logger.Info().
		Str("job_id", listing.ID).
		Bool("should_apply", result.ShouldApply).
		Float64("score", result.Score).
		Msg("Analyzed job match")

	return result, nil
}

// heuristicMatch counts capability keywords in the title and
// description. Two or more hits is an apply.
func (s *Service) heuristicMatch(listing *models.JobListing) *models.MatchResult {
	text := strings.ToLower(listing.Title + " " + listing.Description + " " + listing.Category)

	hits := 0
	var matched []string
	for _, keyword := range capabilityKeywords {
		if strings.Contains(text, keyword) {
			hits++
			matched = append(matched, keyword)
		}
	}

	score := float64(hits) / 4.0
	if score > 1.0 {
		score = 1.0
	}

	result := &models.MatchResult{
		ShouldApply: hits >= 2,
		Score:       score,
		Reason:      fmt.Sprintf("heuristic keyword match: %s", strings.Join(matched, ", ")),
	}
	if result.ShouldApply {
		result.Proposal = fmt.Sprintf("I can handle %q and deliver accurate results promptly.", listing.Title)
	}
	if hits == 0 {
		result.Reason = "no capability keywords matched"
	}

	s.logger.Debug().
		Str("job_id", listing.ID).
		Int("keyword_hits", hits).
		Bool("should_apply", result.ShouldApply).
		Msg("Heuristic job match")

	return result
}

func buildListingPrompt(listing *models.JobListing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", listing.Title)
	fmt.Fprintf(&b, "Company: %s\n", listing.Company)
	fmt.Fprintf(&b, "Category: %s\n", listing.Category)
	fmt.Fprintf(&b, "Payment: %.0f yen\n", listing.Payment)
	if listing.Deadline != "" {
		fmt.Fprintf(&b, "Deadline: %s\n", listing.Deadline)
	}
	if len(listing.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(listing.Tags, ", "))
	}
	fmt.Fprintf(&b, "Description:\n%s\n", listing.Description)
	return b.String()
}

// parseMatchResponse extracts the JSON verdict from a completion.
// Providers sometimes wrap the object in prose or a code fence, so the
// parser hunts for the outermost braces.
func parseMatchResponse(response string) (*models.MatchResult, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var raw struct {
		ShouldApply bool    `json:"should_apply"`
		Score       float64 `json:"score"`
		Reason      string  `json:"reason"`
		Proposal    string  `json:"proposal"`
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil, err
	}

	return &models.MatchResult{
		ShouldApply: raw.ShouldApply,
		Score:       raw.Score,
		Reason:      raw.Reason,
		Proposal:    raw.Proposal,
	}, nil
}

var _ interfaces.JobMatcher = (*Service)(nil)
