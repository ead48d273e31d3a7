package models_test

import (
	"testing"

	"github.com/pitabwire/frame/data"
	"github.com/stretchr/testify/assert"

	"github.com/laran/pulsar/service/models"
)

func TestSetToJSONMapRoundTrip(t *testing.T) {
	m := models.SetToJSONMap([]string{"produce", "consume", "", "produce"})

	assert.True(t, models.JSONMapHas(m, "produce"))
	assert.True(t, models.JSONMapHas(m, "consume"))
	assert.False(t, models.JSONMapHas(m, ""))
	assert.False(t, models.JSONMapHas(m, "functions"))

	assert.Equal(t, []string{"consume", "produce"}, models.JSONMapToSet(m))
}

func TestJSONMapToSetIgnoresNonBooleanEntries(t *testing.T) {
	// Values decoded from jsonb may carry foreign entries; only members
	// stored as true count.
	m := data.JSONMap{
		"produce":  true,
		"consume":  false,
		"metadata": "not-a-flag",
	}

	assert.Equal(t, []string{"produce"}, models.JSONMapToSet(m))
	assert.False(t, models.JSONMapHas(m, "consume"))
	assert.False(t, models.JSONMapHas(m, "metadata"))
}

func TestJSONMapToSetEmpty(t *testing.T) {
	assert.Empty(t, models.JSONMapToSet(nil))
	assert.Empty(t, models.JSONMapToSet(data.JSONMap{}))
}
