package platform

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent_MatchesBuildTarget(t *testing.T) {
	want := Desktop
	if runtime.GOOS == "android" || runtime.GOOS == "ios" {
		want = Mobile
	}
	assert.Equal(t, want, Current())
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "desktop", Desktop.String())
	assert.Equal(t, "mobile", Mobile.String())
	assert.Equal(t, "class(7)", Class(7).String())
	assert.Equal(t, []Class{Desktop, Mobile}, Classes())
}
