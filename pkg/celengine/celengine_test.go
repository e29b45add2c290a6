package celengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	attrs := map[string]any{
		"member": map[string]any{
			"tier":            "plus",
			"points":          int64(120),
			"annual_spending": 525.0,
			"years":           int64(2),
		},
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"true", true},
		{`member.tier == "plus"`, true},
		{`member.tier in ["plus", "premier"] && member.years >= 1`, true},
		{"member.annual_spending >= 1000", false},
		{"member.points > 100", true},
	}
	for _, tc := range cases {
		got, err := Evaluate(tc.expr, attrs)
		require.NoError(t, err, tc.expr)
		require.Equal(t, tc.want, got, tc.expr)
	}
}

func TestEvaluateRejectsNonBool(t *testing.T) {
	_, err := Evaluate(`"member"`, map[string]any{})
	require.Error(t, err)

	_, err = Evaluate("member.", map[string]any{"member": map[string]any{}})
	require.Error(t, err)
}

func TestStructToMap(t *testing.T) {
	type sample struct {
		Tier string `json:"tier"`
	}
	require.Equal(t, map[string]any{"tier": "member"}, StructToMap(sample{Tier: "member"}))
	require.Empty(t, StructToMap(nil))
}
