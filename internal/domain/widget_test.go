package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateLayout(t *testing.T) {
	ok := []Widget{
		{Kind: WidgetPnLSummary, Width: 2, Position: 0},
		{Kind: WidgetEquityCurve, Width: 4, Position: 1},
	}
	assert.NoError(t, ValidateLayout(ok))

	dup := append(ok, Widget{Kind: WidgetPnLSummary, Width: 1, Position: 2})
	assert.ErrorContains(t, ValidateLayout(dup), "appears more than once")

	assert.ErrorContains(t, ValidateLayout([]Widget{{Kind: "CLOCK", Width: 1}}), "unknown widget kind")
	assert.ErrorContains(t, ValidateLayout([]Widget{{Kind: WidgetGoals, Width: 5}}), "width")

	tooMany := make([]Widget, MaxWidgets+1)
	assert.ErrorContains(t, ValidateLayout(tooMany), "at most")
}
