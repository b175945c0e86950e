package models

import (
	"encoding/json"
	"strconv"
)

// Typed views over the per-type extra payload. Unknown or future types are
// stored and forwarded as opaque bytes; these decoders exist for the types the
// core itself needs to inspect or that clients commonly render.

// TextExtra is the read-time extra shape for text messages.
type TextExtra struct {
	Content string `json:"content"`
}

// ImageExtra describes an image payload.
type ImageExtra struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

// AudioExtra describes a voice payload.
type AudioExtra struct {
	URL      string `json:"url"`
	Duration int    `json:"duration,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// VideoExtra describes a video payload.
type VideoExtra struct {
	URL      string `json:"url"`
	Cover    string `json:"cover,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// FileExtra describes a file payload.
type FileExtra struct {
	URL    string `json:"url"`
	Name   string `json:"name,omitempty"`
	Suffix string `json:"suffix,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

// ForwardExtra carries the source message ids of a forward-type message.
type ForwardExtra struct {
	MsgIDs []string `json:"msg_ids"`
}

// UnmarshalJSON accepts msg_ids elements as either strings or integers;
// older clients sent numeric ids.
func (f *ForwardExtra) UnmarshalJSON(data []byte) error {
	var raw struct {
		MsgIDs []json.RawMessage `json:"msg_ids"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.MsgIDs = f.MsgIDs[:0]
	for _, el := range raw.MsgIDs {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			f.MsgIDs = append(f.MsgIDs, s)
			continue
		}
		var n uint64
		if err := json.Unmarshal(el, &n); err == nil {
			f.MsgIDs = append(f.MsgIDs, strconv.FormatUint(n, 10))
		}
	}
	return nil
}

// DecodeExtra returns the typed payload for known message types and the raw
// bytes for everything else.
func DecodeExtra(msgType int16, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var dst any
	switch msgType {
	case MsgTypeText:
		dst = &TextExtra{}
	case MsgTypeImage:
		dst = &ImageExtra{}
	case MsgTypeAudio:
		dst = &AudioExtra{}
	case MsgTypeVideo:
		dst = &VideoExtra{}
	case MsgTypeFile:
		dst = &FileExtra{}
	case MsgTypeForward:
		dst = &ForwardExtra{}
	default:
		return raw, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, err
	}
	return dst, nil
}
