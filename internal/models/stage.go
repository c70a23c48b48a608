package models

// Stage is the interview-stage state machine's current value (spec §3, §4.6).
type Stage string

const (
	StageInitial                          Stage = "INITIAL"
	StageAskingForIdea                    Stage = "ASKING_FOR_IDEA"
	StageAskingForAttributes              Stage = "ASKING_FOR_ATTRIBUTES"
	StageAskingForConsequences            Stage = "ASKING_FOR_CONSEQUENCES"
	StageAskingForConsequencesOrValues    Stage = "ASKING_FOR_CONSEQUENCES_OR_VALUES"
	StageAskingAgainForAttributes         Stage = "ASKING_AGAIN_FOR_ATTRIBUTES"
	StageAskingAgainForAttributesTooShort Stage = "ASKING_AGAIN_FOR_ATTRIBUTES_TOO_SHORT"
	StageValuesLimitReached               Stage = "VALUES_LIMIT_REACHED"
	StageComplete                         Stage = "COMPLETE"
)

// CompletionReason is reported to the client alongside EndOfInterview=true.
type CompletionReason string

const (
	CompletionReasonNone               CompletionReason = ""
	CompletionReasonValuesLimitReached CompletionReason = "VALUES_LIMIT_REACHED"
	CompletionReasonNaturalEnd         CompletionReason = "NATURAL_END"
	CompletionReasonTooShort           CompletionReason = "TOO_SHORT"
)

// transitions is the exhaustive table of valid (from -> to) stage moves
// (spec §4.6). VALUES_LIMIT_REACHED is reachable from every non-terminal
// stage with absolute priority and is therefore listed explicitly per row
// rather than treated as a wildcard, so the table stays the single source
// of truth for TransitionAllowed.
var transitions = map[Stage]map[Stage]bool{
	StageInitial: {
		StageAskingForIdea:      true,
		StageValuesLimitReached: true,
	},
	StageAskingForIdea: {
		StageAskingForAttributes: true,
		StageComplete:            true,
		StageValuesLimitReached:  true,
	},
	StageAskingForAttributes: {
		StageAskingForConsequences:            true,
		StageAskingAgainForAttributes:         true,
		StageAskingAgainForAttributesTooShort: true,
		StageComplete:                         true,
		StageValuesLimitReached:               true,
	},
	StageAskingForConsequences: {
		StageAskingForConsequencesOrValues: true,
		StageAskingAgainForAttributes:      true,
		StageComplete:                      true,
		StageValuesLimitReached:            true,
	},
	StageAskingForConsequencesOrValues: {
		StageAskingForConsequencesOrValues: true,
		StageAskingAgainForAttributes:      true,
		StageComplete:                      true,
		StageValuesLimitReached:            true,
	},
	StageAskingAgainForAttributes: {
		StageAskingForAttributes:              true,
		StageComplete:                         true,
		StageValuesLimitReached:               true,
		StageAskingAgainForAttributesTooShort: true,
	},
	StageAskingAgainForAttributesTooShort: {
		StageComplete:                      true,
		StageValuesLimitReached:            true,
		StageAskingForConsequencesOrValues: true,
		StageAskingAgainForAttributes:      true,
	},
}

// TransitionAllowed reports whether moving from `from` to `to` is a legal
// stage transition (spec §4.6, testable property 5).
func TransitionAllowed(from, to Stage) bool {
	if from == to {
		// Only ASKING_FOR_CONSEQUENCES_OR_VALUES self-loops.
		return from == StageAskingForConsequencesOrValues
	}
	row, ok := transitions[from]
	if !ok {
		return false
	}
	return row[to]
}
