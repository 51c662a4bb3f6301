package papersources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "Block periodization", expected: "Block periodization"},
		{name: "inline tags", input: "Effect of <i>in vivo</i> loading", expected: "Effect of in vivo loading"},
		{name: "jats tags", input: "<jats:p>Resistance training</jats:p>", expected: "Resistance training"},
		{name: "entities", input: "Squat &amp; deadlift", expected: "Squat & deadlift"},
		{name: "whitespace", input: "  a \n\t b  ", expected: "a b"},
		{name: "empty", input: "", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanText(tt.input))
		})
	}
}
