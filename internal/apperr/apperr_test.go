package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	slotTaken := fmt.Errorf("book slot: %w", ErrSlotNoLongerAvailable)

	assert.Equal(t, ErrSlotNoLongerAvailable, KindOf(slotTaken))
	assert.Equal(t, ErrNotFound, KindOf(fmt.Errorf("appointment %s: %w", "x", ErrNotFound)))
	assert.Nil(t, KindOf(errors.New("boom")))
	assert.Nil(t, KindOf(nil))
}

func TestCodeCoversEveryKind(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range Kinds {
		code := Code(fmt.Errorf("wrapped: %w", k))
		assert.NotEqual(t, "internal_error", code, k.Error())
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Equal(t, "internal_error", Code(errors.New("boom")))
	assert.Equal(t, "slot_no_longer_available", Code(ErrSlotNoLongerAvailable))
}
