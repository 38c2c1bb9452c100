package habitat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"high_change", HighChange},
		{"High change", HighChange},
		{" LOW-CHANGE ", LowChange},
		{"intermediate", Intermediate},
		{"not_assigned", Unassigned},
		{"Not assigned", Unassigned},
		{"unassigned", Unassigned},
		{"none", None},
		{"kelp", Category("kelp")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCategory("  ")
	assert.Error(t, err)
}

func TestOrderingNormalize(t *testing.T) {
	o := Ordering{"A", "B", "A", "", Unassigned}.Normalize()
	assert.Equal(t, Ordering{"A", "B", Unassigned, None}, o)

	assert.Equal(t, DefaultOrdering, DefaultOrdering.Normalize())
	assert.Equal(t, 2, o.Index(Unassigned))
	assert.Equal(t, -1, o.Index("C"))
	assert.True(t, None.IsSentinel())
	assert.False(t, HighChange.IsSentinel())
}

func TestParseOrdering(t *testing.T) {
	o, err := ParseOrdering("high_change, intermediate,low change,not_assigned")
	require.NoError(t, err)
	assert.Equal(t, Ordering{HighChange, Intermediate, LowChange, Unassigned}, o)
	assert.Equal(t, "high_change,intermediate,low_change,unassigned", o.String())

	_, err = ParseOrdering(" , ")
	assert.Error(t, err)
}
