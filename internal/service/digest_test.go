package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"im-message-service/internal/models"
)

func TestRenderDigest(t *testing.T) {
	assert.Equal(t, "hello", renderDigest(models.MsgTypeText, "hello"))
	assert.Equal(t, "[image]", renderDigest(models.MsgTypeImage, ""))
	assert.Equal(t, "[voice]", renderDigest(models.MsgTypeAudio, ""))
	assert.Equal(t, "[video]", renderDigest(models.MsgTypeVideo, ""))
	assert.Equal(t, "[file]", renderDigest(models.MsgTypeFile, ""))
	assert.Equal(t, "[non-text message]", renderDigest(models.MsgTypeCard, ""))
	assert.Equal(t, "[non-text message]", renderDigest(models.MsgTypeForward, ""))
}

func TestRenderDigestTruncatesByRune(t *testing.T) {
	long := strings.Repeat("Ω", 300)
	got := renderDigest(models.MsgTypeText, long)
	assert.Equal(t, 255, len([]rune(got)))
	assert.Equal(t, strings.Repeat("Ω", 255), got)

	exact := strings.Repeat("a", 255)
	assert.Equal(t, exact, renderDigest(models.MsgTypeText, exact))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultPageLimit, clampLimit(0))
	assert.Equal(t, defaultPageLimit, clampLimit(-5))
	assert.Equal(t, 50, clampLimit(50))
	assert.Equal(t, maxPageLimit, clampLimit(999))
}

func TestMsgIDGeneration(t *testing.T) {
	id := newMsgID()
	assert.True(t, isHex32(id))
	assert.NotEqual(t, id, newMsgID())

	assert.False(t, isHex32(""))
	assert.False(t, isHex32("abc"))
	assert.False(t, isHex32(strings.Repeat("z", 32)))
	assert.True(t, isHex32(strings.Repeat("ab", 16)))
}
