package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"137.664", "137.66"},
		{"137.665", "137.67"},
		{"137.666", "137.67"},
		{"0.005", "0.01"},
		{"-0.005", "-0.01"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Round(MustParse(tc.in)).StringFixed(2), "round %s", tc.in)
	}
}

func TestRoundUnit(t *testing.T) {
	require.Equal(t, "221", RoundUnit(MustParse("220.6199")).String())
	require.Equal(t, "220", RoundUnit(MustParse("220.4999")).String())
	require.Equal(t, "83", RoundUnit(MustParse("83.3333")).String())
}

func TestWithinTolerance(t *testing.T) {
	require.True(t, WithinTolerance(MustParse("100.00"), MustParse("100.01"), MinorUnits(1)))
	require.False(t, WithinTolerance(MustParse("100.00"), MustParse("100.02"), MinorUnits(1)))
	require.True(t, WithinTolerance(MustParse("100.10"), MustParse("100.00"), MinorUnits(10)))
}

func TestClamp(t *testing.T) {
	require.True(t, Clamp(MustParse("-12.50")).IsZero())
	require.Equal(t, "12.50", Clamp(MustParse("12.50")).StringFixed(2))
}
