package question

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderflow/engine/internal/models"
)

func TestRender_SubstitutesPlaceholders(t *testing.T) {
	out, err := Render("A1.1", map[string]string{"stimulus": "organic vegetables", "active": "buying local"})
	require.NoError(t, err)
	assert.Equal(t, "Thinking about organic vegetables, what specifically do you notice about buying local?", out)
}

func TestRender_UnknownTokenErrors(t *testing.T) {
	_, err := Render("does_not_exist", nil)
	assert.ErrorIs(t, err, models.ErrTemplateNotFound)
}

func TestRender_MissingPlaceholderErrors(t *testing.T) {
	_, err := Render("A1.1", map[string]string{"stimulus": "organic vegetables"})
	assert.ErrorIs(t, err, models.ErrMissingPlaceholder)
}

func TestRender_NoPlaceholdersTemplate(t *testing.T) {
	out, err := Render("values_limit_acknowledgment", nil)
	require.NoError(t, err)
	assert.Equal(t, "Thank you, that gives me a clear picture of what matters to you here.", out)
}
