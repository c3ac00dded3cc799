package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveModel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"default", ""},
		{"  DEFAULT ", ""},
		{"gpt-4o", "GPT-4o"},
		{"claude 3.5", "Claude 3.5"},
		{"my-custom-model", "my-custom-model"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveModel(tt.in))
		})
	}
}

func TestModels_ReturnsCopy(t *testing.T) {
	list := Models()
	list[0].ID = "changed"
	assert.NotEqual(t, "changed", Models()[0].ID)
}
