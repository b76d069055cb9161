package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
	}{
		{name: "empty", raw: "", expected: nil},
		{name: "blank", raw: "  ", expected: nil},
		{name: "single broker", raw: "kafka-1:9092", expected: []string{"kafka-1:9092"}},
		{
			name:     "trims and drops duplicates",
			raw:      " kafka-1:9092, kafka-2:9092,,kafka-1:9092",
			expected: []string{"kafka-1:9092", "kafka-2:9092"},
		},
		{name: "only separators", raw: ",,,", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.raw, ","))
		})
	}
}

func TestDedupeAndTrim(t *testing.T) {
	assert.Nil(t, DedupeAndTrim(nil))
	assert.Equal(t, []string{}, DedupeAndTrim([]string{}))
	assert.Equal(t,
		[]string{"retention-scheduler", "Retention-Scheduler"},
		DedupeAndTrim([]string{" retention-scheduler", "Retention-Scheduler", "retention-scheduler "}))
}

func TestDedupeAndTrimLower(t *testing.T) {
	assert.Equal(t,
		[]string{"no_hp", "email"},
		DedupeAndTrimLower([]string{"  NO_HP ", "email", "no_hp", "", "Email"}))
}
