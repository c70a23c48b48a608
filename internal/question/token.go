package question

import "github.com/ladderflow/engine/internal/models"

// TokenInput carries the inputs needed to derive a question-type token
// (spec §4.7: "derived from the current stage and active label").
type TokenInput struct {
	Stage               models.Stage
	ActiveLabel         models.Label
	EffectiveParentLabel models.Label
	Expanded            bool
}

// DeriveToken picks the question-type token for the given situation. The
// expanded strategy keys off the effective parent's label rather than the
// active label (spec §4.7).
func DeriveToken(in TokenInput) string {
	if in.Stage == models.StageAskingAgainForAttributes || in.Stage == models.StageAskingAgainForAttributesTooShort {
		return "ask_again_for_attributes"
	}

	if in.Expanded {
		switch in.EffectiveParentLabel {
		case models.LabelStimulus:
			return "expanded_idea_question"
		case models.LabelIdea:
			return "expanded_attribute"
		case models.LabelAttribute:
			return "expanded_consequence"
		case models.LabelConsequence:
			return "expanded_value"
		}
	}

	switch in.ActiveLabel {
	case models.LabelStimulus:
		return "idea_question"
	case models.LabelIdea:
		return "A1.1"
	case models.LabelAttribute:
		return "C1.1"
	case models.LabelConsequence:
		if in.Stage == models.StageAskingForConsequencesOrValues {
			return "CV1.1"
		}
		return "C1.2"
	default:
		return "A1.1"
	}
}
