package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEdgeAllowed_TypeHierarchy(t *testing.T) {
	tests := []struct {
		name    string
		parent  Label
		child   Label
		allowed bool
	}{
		{"stimulus to idea", LabelStimulus, LabelIdea, true},
		{"idea to attribute", LabelIdea, LabelAttribute, true},
		{"attribute to consequence", LabelAttribute, LabelConsequence, true},
		{"consequence to consequence", LabelConsequence, LabelConsequence, true},
		{"consequence to value", LabelConsequence, LabelValue, true},
		{"stimulus to attribute skips idea", LabelStimulus, LabelAttribute, false},
		{"idea to consequence skips attribute", LabelIdea, LabelConsequence, false},
		{"value has no children", LabelValue, LabelConsequence, false},
		{"attribute to idea is backwards", LabelAttribute, LabelIdea, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, EdgeAllowed(tt.parent, tt.child))
		})
	}
}

func TestEdgeAllowed_IrrelevantAlwaysAllowedExceptUnderTopic(t *testing.T) {
	assert.True(t, EdgeAllowed(LabelStimulus, LabelIrrelevant))
	assert.True(t, EdgeAllowed(LabelIdea, LabelIrrelevant))
	assert.True(t, EdgeAllowed(LabelAttribute, LabelIrrelevant))
	assert.True(t, EdgeAllowed(LabelConsequence, LabelIrrelevant))
	assert.True(t, EdgeAllowed(LabelValue, LabelIrrelevant))
	assert.True(t, EdgeAllowed(LabelIrrelevant, LabelIrrelevant))
	assert.False(t, EdgeAllowed(LabelTopic, LabelIrrelevant))
}

func TestLabel_Queueable(t *testing.T) {
	assert.True(t, LabelStimulus.Queueable())
	assert.True(t, LabelAttribute.Queueable())
	assert.True(t, LabelConsequence.Queueable())
	assert.False(t, LabelIdea.Queueable())
	assert.False(t, LabelValue.Queueable())
	assert.False(t, LabelIrrelevant.Queueable())
	assert.False(t, LabelTopic.Queueable())
}
