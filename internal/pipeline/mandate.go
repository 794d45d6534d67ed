package pipeline

import (
	"context"
	"fmt"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

// MandateSigner is implemented by the mandate package; stages depend on
// the narrow contract only.
type MandateSigner interface {
	Sign(s *domain.CheckoutSession) (*domain.Mandate, error)
	Verify(m *domain.Mandate, s *domain.CheckoutSession) bool
}

// MandateStage owns the tamper-evidence property. On update it tears
// down any mandate signed before the mutation; on complete it reuses a
// mandate that still verifies against the current state, or signs a
// fresh one.
type MandateStage struct {
	signer MandateSigner
}

func NewMandateStage(signer MandateSigner) *MandateStage {
	return &MandateStage{signer: signer}
}

func (m *MandateStage) Name() string { return "mandate" }

func (m *MandateStage) Apply(_ context.Context, s *domain.CheckoutSession, pc *Context) error {
	if pc.Phase == PhaseUpdate {
		s.Mandate = nil
		return nil
	}

	if s.Mandate != nil && m.signer.Verify(s.Mandate, s) {
		return nil
	}

	signed, err := m.signer.Sign(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMandateSigningUnavailable, err)
	}
	s.Mandate = signed
	return nil
}
