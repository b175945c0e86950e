package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardExtraAcceptsMixedIDForms(t *testing.T) {
	var fx ForwardExtra
	err := json.Unmarshal([]byte(`{"msg_ids":["a1b2",123,"c3d4"]}`), &fx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1b2", "123", "c3d4"}, fx.MsgIDs)
}

func TestDecodeExtra(t *testing.T) {
	got, err := DecodeExtra(MsgTypeText, json.RawMessage(`{"content":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, &TextExtra{Content: "hi"}, got)

	got, err = DecodeExtra(MsgTypeImage, json.RawMessage(`{"url":"x.png","width":80}`))
	require.NoError(t, err)
	assert.Equal(t, &ImageExtra{URL: "x.png", Width: 80}, got)

	// unknown-to-the-core types pass through untouched
	raw := json.RawMessage(`{"anything":true}`)
	got, err = DecodeExtra(MsgTypeCard, raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeExtra(MsgTypeText, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMsgTypeNameRoundTrip(t *testing.T) {
	code, ok := MsgTypeFromName("forward")
	require.True(t, ok)
	assert.Equal(t, MsgTypeForward, code)

	name, ok := MsgTypeName(code)
	require.True(t, ok)
	assert.Equal(t, "forward", name)

	_, ok = MsgTypeFromName("hologram")
	assert.False(t, ok)
	_, ok = MsgTypeName(99)
	assert.False(t, ok)
}
