package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	assert.Equal(t,
		"tenant_7b6a3a39_8fdc_4fbb_9b39_1ad1f0ae2f11",
		Name("7b6a3a39-8fdc-4fbb-9b39-1ad1f0ae2f11"),
	)
}

func TestName_NoHyphensLeft(t *testing.T) {
	name := Name("11111111-2222-3333-4444-555555555555")
	assert.NotContains(t, name, "-")
	assert.Contains(t, name, "tenant_")
}
