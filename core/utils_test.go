package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "", want: ""},
		{in: "   ", want: ""},
		{in: " Blue   Lake ", want: "Blue Lake"},
		{in: "Ann\tN.\nKamau", want: "Ann N. Kamau"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanName(tt.in), "%q", tt.in)
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "blue-lake-high", Slugify(" Blue Lake: High! "))
	assert.Equal(t, "form-4-north", Slugify("Form 4 / North"))
}
