package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortalDate(t *testing.T) {
	got := ParsePortalDate("03/07/25")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, time.March, 7, 0, 0, 0, 0, time.UTC), *got)

	assert.Nil(t, ParsePortalDate(""))
	assert.Nil(t, ParsePortalDate("   "))
	assert.Nil(t, ParsePortalDate("13/40/99"))
	assert.Nil(t, ParsePortalDate("2025-03-07"))
	assert.Nil(t, ParsePortalDate("02/30/24"))
}

func TestParsePortalDate_Pivot(t *testing.T) {
	assert.Equal(t, 2068, ParsePortalDate("01/01/68").Year())
	assert.Equal(t, 1969, ParsePortalDate("01/01/69").Year())
	assert.Equal(t, 2000, ParsePortalDate("12/31/00").Year())
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "", FormatDate(nil))
	assert.Equal(t, "2025-03-07", FormatDate(ParsePortalDate(" 03/07/25 ")))
}
