package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelay(t *testing.T) {
	tests := []struct {
		name    string
		current time.Duration
		factor  float64
		want    time.Duration
	}{
		{"doubles", time.Second, 2, 2 * time.Second},
		{"factor one keeps delay", time.Second, 1, time.Second},
		{"zero factor keeps delay", 500 * time.Millisecond, 0, 500 * time.Millisecond},
		{"fractional factor", time.Second, 1.5, 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextDelay(tt.current, tt.factor))
		})
	}
}
