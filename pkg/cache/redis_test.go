package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStateKey(t *testing.T) {
	day := time.Date(2025, 3, 1, 15, 4, 0, 0, time.UTC)
	assert.Equal(t, "conduct:state:stu-1:2025-03-01", StateKey("stu-1", day))
	assert.Equal(t, "conduct:state:stu-1:*", StudentPattern("stu-1"))
}
