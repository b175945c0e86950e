package service

import "im-message-service/internal/models"

const maxDigestRunes = 255

// renderDigest produces the conversation-list preview for a message. Text
// bodies are truncated to keep summary rows bounded; media types collapse to
// a fixed placeholder so previews never leak payload details.
func renderDigest(msgType int16, text string) string {
	switch msgType {
	case models.MsgTypeText:
		runes := []rune(text)
		if len(runes) > maxDigestRunes {
			return string(runes[:maxDigestRunes])
		}
		return text
	case models.MsgTypeImage:
		return "[image]"
	case models.MsgTypeAudio:
		return "[voice]"
	case models.MsgTypeVideo:
		return "[video]"
	case models.MsgTypeFile:
		return "[file]"
	default:
		return "[non-text message]"
	}
}
