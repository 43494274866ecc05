package utils_test

import (
	"strings"
	"testing"

	"github.com/mautops/rdrealty-lms/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "line1\nline2\tend", utils.SanitizeString("line1\nline2\tend\x00\x07"))
	assert.Equal(t, "Cruz, Ana", utils.SanitizeString("Cruz, Ana"))
}

func TestCleanText(t *testing.T) {
	got, err := utils.CleanText("  delivered to site \x1b ", 50)
	require.NoError(t, err)
	assert.Equal(t, "delivered to site", got)

	got, err = utils.CleanText("   ", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	// 按字符而非字节计长
	_, err = utils.CleanText(strings.Repeat("é", 10), 10)
	assert.NoError(t, err)

	_, err = utils.CleanText(strings.Repeat("x", 11), 10)
	assert.ErrorIs(t, err, utils.ErrStringTooLong)
}

func TestTrimAndValidate(t *testing.T) {
	_, err := utils.TrimAndValidate(" \t ", 10)
	assert.ErrorIs(t, err, utils.ErrEmptyString)

	got, err := utils.TrimAndValidate(" sick leave ", 10)
	require.NoError(t, err)
	assert.Equal(t, "sick leave", got)
}
