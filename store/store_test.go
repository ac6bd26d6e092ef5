package store

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomAvatarColor(t *testing.T) {
	hex := regexp.MustCompile(`^#[0-9A-F]{6}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		c := RandomAvatarColor()
		assert.Regexp(t, hex, c)
		seen[c] = struct{}{}
	}
	assert.Greater(t, len(seen), 1, "palette should actually vary")
	assert.LessOrEqual(t, len(seen), len(avatarColors))
}
