package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TurnsTotal.WithLabelValues("api", "success").Inc()
	m.CorrectionsTotal.Add(2)
	m.NameResolutions.WithLabelValues("fuzzy").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("api", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CorrectionsTotal))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["agent_turns_total"])
	assert.True(t, names["agent_sql_corrections_total"])
	assert.True(t, names["agent_name_resolutions_total"])
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.TurnsTotal.WithLabelValues("follow_up", "success").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("follow_up", "success")))
}
