package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

var validScopes = map[domain.ConsentScope]bool{
	domain.ConsentScopeDataSharing: true,
	domain.ConsentScopeMarketing:   true,
	domain.ConsentScopeTransaction: true,
}

// ConsentStage records consent grants carried by the incoming update.
// It blocks nothing by itself; completion checks the recorded state.
type ConsentStage struct{}

func NewConsentStage() *ConsentStage {
	return &ConsentStage{}
}

func (c *ConsentStage) Name() string { return "consent" }

func (c *ConsentStage) Apply(_ context.Context, s *domain.CheckoutSession, pc *Context) error {
	if pc.Patch == nil || len(pc.Patch.Consent) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for _, grant := range pc.Patch.Consent {
		if !validScopes[grant.Scope] {
			return fmt.Errorf("%w: unknown consent scope %q", ErrInvalidConsentScope, grant.Scope)
		}
		record := domain.ConsentRecord{
			Scope:     grant.Scope,
			Granted:   grant.Granted,
			GrantedAt: now,
		}
		// An update only overrides scopes it explicitly sets.
		replaced := false
		for i, existing := range s.Consent {
			if existing.Scope == grant.Scope {
				s.Consent[i] = record
				replaced = true
				break
			}
		}
		if !replaced {
			s.Consent = append(s.Consent, record)
		}
	}
	return nil
}
