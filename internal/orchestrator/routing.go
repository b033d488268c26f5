package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"notification-engine/internal/db"
	"notification-engine/internal/models"
	"notification-engine/internal/template"
)

// FanOut reports what RouteToGroups did for one event.
type FanOut struct {
	MatchedRules int         `json:"matched_rules"`
	JobIDs       []uuid.UUID `json:"job_ids,omitempty"`
	Errors       []string    `json:"errors,omitempty"`
}

// RouteToGroups evaluates the active routing rules for the notification type
// against the event payload and enqueues one job per matching group target.
// A missing template makes the rule a no-op, never a failure of the
// triggering event.
func (s *Service) RouteToGroups(ctx context.Context, notificationType string, data map[string]string) (FanOut, error) {
	rules, err := s.store.GetActiveRoutingRules(ctx, notificationType)
	if err != nil {
		return FanOut{}, fmt.Errorf("failed to load routing rules: %w", err)
	}

	var result FanOut
	for _, rule := range rules {
		if !matchConditions(rule.Conditions, data) {
			continue
		}
		result.MatchedRules++

		tpl, err := s.resolveTemplate(ctx, rule.TemplateCode, notificationType)
		if err != nil {
			s.logger.Warnf("No template for routing rule %s (type %s), skipping", rule.ID, notificationType)
			continue
		}

		for _, name := range template.Vars(tpl.Body) {
			if _, ok := data[name]; !ok {
				s.logger.Warnf("Template %s variable %q missing from event data, rendering dash", tpl.Code, name)
			}
		}
		message := template.Render(tpl.Body, data)
		for _, group := range rule.TargetGroups {
			jobID, err := s.queue.Enqueue(ctx, models.DeliveryJob{
				Kind:    models.JobNotifyGroup,
				Target:  group,
				Message: message,
				Channel: models.ChannelGateway,
			})
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("group %s: %v", group, err))
				s.logger.Errorf("Failed to enqueue group job for %s: %v", group, err)
				continue
			}
			result.JobIDs = append(result.JobIDs, jobID)
		}
	}

	s.logger.Infof("Routed type=%s: %d rules matched, %d jobs", notificationType, result.MatchedRules, len(result.JobIDs))
	return result, nil
}

// resolveTemplate tries the exact code first, then a fuzzy match against the
// notification type.
func (s *Service) resolveTemplate(ctx context.Context, code, notificationType string) (models.Template, error) {
	if code == "" {
		code = notificationType
	}
	tpl, err := s.store.GetTemplateByCode(ctx, code)
	if err == nil {
		return tpl, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return models.Template{}, err
	}

	all, err := s.store.GetActiveTemplates(ctx)
	if err != nil {
		return models.Template{}, err
	}
	for _, t := range all {
		if template.MatchCode(t.Code, notificationType) {
			return t, nil
		}
	}
	return models.Template{}, db.ErrNotFound
}

// matchConditions evaluates a rule's conditions against the event payload.
// Empty conditions match everything; a missing field or unknown operator
// never matches.
func matchConditions(conditions []models.RoutingCondition, data map[string]string) bool {
	for _, cond := range conditions {
		value, ok := data[cond.Field]
		if !ok {
			return false
		}
		switch cond.Operator {
		case models.OpEquals:
			if value != fmt.Sprint(cond.Value) {
				return false
			}
		case models.OpIn:
			allowed, ok := cond.Value.([]interface{})
			if !ok {
				return false
			}
			found := false
			for _, a := range allowed {
				if value == fmt.Sprint(a) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case models.OpMax:
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return false
			}
			threshold, err := toFloat(cond.Value)
			if err != nil {
				return false
			}
			if v > threshold {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
