package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/pkg/config"
)

// urgencyRules maps trigger phrases to the priority they force. Matching is
// word-bounded on normalized text, so "deadline" does not trip "dead".
var urgencyRules = []struct {
	phrase   string
	priority models.IssuePriority
}{
	{"fire", models.PriorityUrgent},
	{"gas leak", models.PriorityUrgent},
	{"explosion", models.PriorityUrgent},
	{"building collapse", models.PriorityUrgent},
	{"collapse", models.PriorityUrgent},
	{"live wire", models.PriorityUrgent},
	{"electrocution", models.PriorityUrgent},
	{"dead", models.PriorityHigh},
	{"accident", models.PriorityHigh},
	{"injury", models.PriorityHigh},
	{"sewage", models.PriorityHigh},
	{"flooding", models.PriorityHigh},
	{"overflow", models.PriorityMedium},
	{"pothole", models.PriorityMedium},
	{"leak", models.PriorityMedium},
}

// ClassifierService derives an issue priority from its free text. A remote
// model is consulted when configured; the keyword rule table is both the
// fallback and the only path in deployments without a model endpoint.
type ClassifierService struct {
	cfg    config.ClassifierConfig
	client *http.Client
	logger *zap.Logger
}

// NewClassifierService constructs the classifier.
func NewClassifierService(cfg config.ClassifierConfig, logger *zap.Logger) *ClassifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassifierService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Classify returns the priority for the given title and description. The
// fallback is returned unchanged when neither the remote model nor the rule
// table finds anything more urgent.
func (s *ClassifierService) Classify(ctx context.Context, title, description string, fallback models.IssuePriority) models.IssuePriority {
	text := title + " " + description

	if s.cfg.BaseURL != "" {
		if priority, err := s.classifyRemote(ctx, text); err == nil {
			return priority
		} else {
			s.logger.Warn("remote classifier unavailable, using keyword rules", zap.Error(err))
		}
	}

	if priority, ok := DetectUrgency(text); ok {
		return priority
	}
	return fallback
}

type remoteClassifyRequest struct {
	Text string `json:"text"`
}

type remoteClassifyResponse struct {
	Priority string `json:"priority"`
}

func (s *ClassifierService) classifyRemote(ctx context.Context, text string) (models.IssuePriority, error) {
	payload, err := json.Marshal(remoteClassifyRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/classify", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var body remoteClassifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode classify response: %w", err)
	}

	priority := models.IssuePriority(body.Priority)
	if !models.ValidPriority(priority) {
		return "", fmt.Errorf("classifier returned unknown priority %q", body.Priority)
	}
	return priority, nil
}

// RemoveReport tells the remote model an issue is resolved so its text drops
// out of the training window. The external report reference is the removal
// key; the model never sees internal issue ids. Best-effort: failures are
// logged, never propagated.
func (s *ClassifierService) RemoveReport(ctx context.Context, issue *models.Issue) {
	if s.cfg.BaseURL == "" {
		return
	}

	req, err := s.removeRequest(ctx, issue)
	if err != nil {
		s.logger.Warn("build classifier removal request failed", zap.String("issue_id", issue.ID), zap.Error(err))
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("classifier removal failed", zap.String("issue_id", issue.ID), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		s.logger.Warn("classifier removal rejected",
			zap.String("issue_id", issue.ID), zap.Int("status", resp.StatusCode))
	}
}

type removeReportRequest struct {
	Description string `json:"description"`
	ReportedBy  string `json:"reported_by"`
}

// removeRequest targets the report reference when the issue carries one.
// Issues without a reference are matched by description and reporter
// instead.
func (s *ClassifierService) removeRequest(ctx context.Context, issue *models.Issue) (*http.Request, error) {
	if issue.ReportRef != nil && *issue.ReportRef != "" {
		return http.NewRequestWithContext(ctx, http.MethodDelete, s.cfg.BaseURL+"/reports/"+url.PathEscape(*issue.ReportRef), nil)
	}

	payload, err := json.Marshal(removeReportRequest{Description: issue.Description, ReportedBy: issue.ReportedBy})
	if err != nil {
		return nil, fmt.Errorf("marshal removal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.cfg.BaseURL+"/reports", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// DetectUrgency runs the keyword rule table over the text. The most urgent
// matching rule wins. ok is false when nothing matched.
func DetectUrgency(text string) (models.IssuePriority, bool) {
	normalized := normalizeText(text)

	best := models.IssuePriority("")
	for _, rule := range urgencyRules {
		if !containsPhrase(normalized, rule.phrase) {
			continue
		}
		if best == "" || priorityRank(rule.priority) > priorityRank(best) {
			best = rule.priority
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// normalizeText lowercases and collapses every non-alphanumeric run to a
// single space.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// containsPhrase reports whether the normalized text contains the phrase on
// word boundaries.
func containsPhrase(normalized, phrase string) bool {
	return strings.Contains(" "+normalized+" ", " "+phrase+" ")
}

func priorityRank(p models.IssuePriority) int {
	switch p {
	case models.PriorityUrgent:
		return 3
	case models.PriorityHigh:
		return 2
	case models.PriorityMedium:
		return 1
	default:
		return 0
	}
}
