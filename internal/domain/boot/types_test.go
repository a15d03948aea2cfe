package boot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSlotComplement verifies the two slots are complementary and never equal.
func TestSlotComplement(t *testing.T) {
	t.Parallel()

	require.Equal(t, SlotB, SlotA.Complement())
	require.Equal(t, SlotA, SlotB.Complement())

	for _, slot := range []Slot{SlotA, SlotB} {
		require.NotEqual(t, slot, slot.Complement())
		require.Equal(t, slot, slot.Complement().Complement())
	}
}

// TestParseSlot checks accepted spellings and rejection of unknown input.
func TestParseSlot(t *testing.T) {
	t.Parallel()

	slot, err := ParseSlot(" A ")
	require.NoError(t, err)
	require.Equal(t, SlotA, slot)

	slot, err = ParseSlot("b")
	require.NoError(t, err)
	require.Equal(t, SlotB, slot)

	_, err = ParseSlot("c")
	require.Error(t, err)
}

// TestCmdlineString verifies token order is preserved verbatim.
func TestCmdlineString(t *testing.T) {
	t.Parallel()

	cmdline := Cmdline{"quiet", "splash", "root=UUID=1234", "ro"}
	require.Equal(t, "quiet splash root=UUID=1234 ro", cmdline.String())
}

// TestExitCodeOf checks the category to exit code mapping.
func TestExitCodeOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, ExitCodeOf(nil))
	require.Equal(t, 1, ExitCodeOf(errors.New("plain")))

	err := E("deploy", CategorySlotConflict, errors.New("target is active"))
	require.Equal(t, 6, ExitCodeOf(err))
	require.Equal(t, CategorySlotConflict, CategoryOf(err))

	// Wrapping keeps the category visible.
	wrapped := errors.Join(errors.New("outer"), err)
	require.Equal(t, CategorySlotConflict, CategoryOf(wrapped))
}

// TestErrorMessageNamesStage ensures reports point at the failing stage.
func TestErrorMessageNamesStage(t *testing.T) {
	t.Parallel()

	err := Ef("fetch", CategoryNetwork, "download %s: timeout", "image")
	require.Contains(t, err.Error(), "fetch")
	require.Contains(t, err.Error(), "network")
	require.Contains(t, err.Error(), "download image")
}
