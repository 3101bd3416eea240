package session

import (
	"fmt"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/clinical"
	"postpartum-htn-backend/internal/model"
)

func requireActive(s *model.EmergencySession, op string) error {
	if s == nil {
		return apperr.Precondition(apperr.CodeNoActiveSession, "%s: no emergency session", op)
	}
	if s.Status != model.SessionActive {
		return apperr.Precondition(apperr.CodeInvalidTransition, "%s: session is %s", op, s.Status)
	}
	return nil
}

// CanSelectAlgorithm requires an active session without an algorithm.
func CanSelectAlgorithm(s *model.EmergencySession) error {
	if err := requireActive(s, "select algorithm"); err != nil {
		return err
	}
	if s.AlgorithmSelected != nil {
		return apperr.Precondition(apperr.CodeInvalidTransition, "select algorithm: %s already selected", *s.AlgorithmSelected)
	}
	return nil
}

// NextDose returns the dose to order next.
func NextDose(s *model.EmergencySession) (clinical.Dose, error) {
	if err := requireActive(s, "order dose"); err != nil {
		return clinical.Dose{}, err
	}
	if s.AlgorithmSelected == nil {
		return clinical.Dose{}, apperr.Precondition(apperr.CodeInvalidTransition, "order dose: no algorithm selected")
	}
	d, ok := clinical.NextDose(clinical.Algorithm(*s.AlgorithmSelected), s.CurrentStep)
	if !ok {
		return clinical.Dose{}, apperr.Precondition(apperr.CodeProtocolExhausted,
			"order dose: %s protocol complete after %d doses", *s.AlgorithmSelected, s.CurrentStep)
	}
	return d, nil
}

// CanAdminister requires an active session owning a not yet administered dose.
func CanAdminister(s *model.EmergencySession, m *model.MedicationDose) error {
	if err := requireActive(s, "administer medication"); err != nil {
		return err
	}
	if m.EmergencySessionID != s.ID {
		return apperr.Precondition(apperr.CodeDoseNotFound, "administer medication: dose %s does not belong to session %s", m.ID, s.ID)
	}
	if m.Administered() {
		return apperr.Precondition(apperr.CodeInvalidTransition, "administer medication: dose %d already administered", m.DoseNumber)
	}
	return nil
}

// CanAcknowledge requires an escalated session.
func CanAcknowledge(s *model.EmergencySession) error {
	if s == nil {
		return apperr.Precondition(apperr.CodeNoActiveSession, "acknowledge: no emergency session")
	}
	if s.Status != model.SessionEscalated {
		return apperr.Precondition(apperr.CodeInvalidTransition, "acknowledge: session is %s, not escalated", s.Status)
	}
	return nil
}

// CanResolve requires an open session.
func CanResolve(s *model.EmergencySession) error {
	if !s.Open() {
		return apperr.Precondition(apperr.CodeNoActiveSession, "resolve: no open emergency session")
	}
	return nil
}

// CanEscalate requires an active session.
func CanEscalate(s *model.EmergencySession) error {
	return requireActive(s, "escalate")
}

// NextAction is the instruction shown for a stage.
func NextAction(stage Stage, s *model.EmergencySession) string {
	switch stage {
	case StageFirstHigh:
		return fmt.Sprintf("Recheck BP within %d minutes to confirm.", int(clinical.RecheckInterval.Minutes()))
	case StageConfirmed:
		return "Select a medication algorithm."
	case StageAlgorithmSelected, StageTreating:
		if s == nil || s.AlgorithmSelected == nil {
			return "Select a medication algorithm."
		}
		alg := clinical.Algorithm(*s.AlgorithmSelected)
		if d, ok := clinical.NextDose(alg, s.CurrentStep); ok {
			return fmt.Sprintf("Give %s %s %s (dose %d), then recheck BP in %d minutes.", d.Medication, d.Amount, d.Route, d.Step, d.WaitMins)
		}
		return "Protocol complete. Recheck BP; escalate if still severe."
	case StageEscalated:
		if s != nil && s.AcknowledgedBy != nil {
			return fmt.Sprintf("Attending %s has taken over care.", *s.AcknowledgedBy)
		}
		return "Attending physician must acknowledge and take over care."
	case StageResolved:
		return "Emergency resolved. Continue routine monitoring."
	default:
		return "Continue routine BP monitoring."
	}
}
