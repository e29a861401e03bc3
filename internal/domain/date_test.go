package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOfDropsTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	d := DateOf(time.Date(2024, 3, 1, 23, 30, 0, 0, loc))
	assert.Equal(t, "2024-03-01", d.String())
	assert.Equal(t, time.UTC, d.Location())
	assert.Zero(t, d.Hour())
}

func TestDateJSON(t *testing.T) {
	raw, err := json.Marshal(map[string]any{"fecha": DateOf(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fecha":"2024-01-02"}`, string(raw))

	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2023-12-31"`), &d))
	assert.Equal(t, DateOf(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)), d)
	assert.Error(t, json.Unmarshal([]byte(`"2023-12-31T10:00:00Z"`), &d))
}
