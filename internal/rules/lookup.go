package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/opinionscan/internal/crawler"
)

// Lookup finds the rule for a listing source label. Labels often carry a
// date or URL after the site name, so the first whitespace-separated token
// is tried before the full label. A missing rule is not an error: it
// returns (nil, nil).
func Lookup(ctx context.Context, store crawler.RuleStore, sourceLabel string) (*crawler.ExtractionRule, error) {
	label := strings.TrimSpace(sourceLabel)
	fields := strings.Fields(label)
	if len(fields) == 0 || store == nil {
		return nil, nil
	}
	candidates := []string{fields[0]}
	if label != fields[0] {
		candidates = append(candidates, label)
	}
	for _, name := range candidates {
		rule, err := store.FindRuleBySite(ctx, name)
		if errors.Is(err, crawler.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find rule %q: %w", name, err)
		}
		return &rule, nil
	}
	return nil, nil
}

// ProposalChanged reports whether proposal carries a new, non-empty content
// selector for rule.
func ProposalChanged(rule *crawler.ExtractionRule, proposal *crawler.RuleUpdateProposal) bool {
	if rule == nil || proposal == nil {
		return false
	}
	next := strings.TrimSpace(proposal.Rule.ContentSelector)
	return next != "" && next != rule.ContentSelector
}

// Apply persists a changed proposal and reports whether it wrote anything.
func Apply(ctx context.Context, store crawler.RuleStore, rule *crawler.ExtractionRule, proposal *crawler.RuleUpdateProposal) (bool, error) {
	if !ProposalChanged(rule, proposal) {
		return false, nil
	}
	if err := store.UpdateContentSelector(ctx, rule.ID, proposal.Rule.ContentSelector); err != nil {
		return false, fmt.Errorf("update rule %d: %w", rule.ID, err)
	}
	return true, nil
}
