package types

import (
	"path"
	"strings"
)

// FallbackUserName is shown for user senders with no resolvable username.
const FallbackUserName = "User"

const (
	MediaImage = "image"
	MediaVideo = "video"
)

var mediaExtensions = map[string]string{
	".jpg": MediaImage, ".jpeg": MediaImage, ".png": MediaImage, ".gif": MediaImage,
	".webp": MediaImage, ".bmp": MediaImage, ".svg": MediaImage, ".tiff": MediaImage,
	".heic": MediaImage, ".avif": MediaImage, ".ico": MediaImage,
	".mp4": MediaVideo, ".webm": MediaVideo, ".mov": MediaVideo, ".avi": MediaVideo,
	".mkv": MediaVideo, ".m4v": MediaVideo, ".3gp": MediaVideo, ".mpeg": MediaVideo,
	".ogv": MediaVideo, ".flv": MediaVideo, ".wmv": MediaVideo,
}

// MediaTypeFor classifies a media URL as image or video by its extension.
// It returns "" when the URL is empty or the extension is not recognised.
func MediaTypeFor(url string) string {
	if url == "" {
		return ""
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return mediaExtensions[strings.ToLower(path.Ext(url))]
}

// NormalizeMessage is the single place a stored message is turned into its
// outbound form. Admin senders always carry adminName; user senders keep
// their username or fall back to FallbackUserName.
func NormalizeMessage(m Message, adminName string) Message {
	switch m.SenderType {
	case SenderAdmin:
		m.SenderName = adminName
	default:
		if strings.TrimSpace(m.SenderName) == "" {
			m.SenderName = FallbackUserName
		}
	}

	if m.MediaURL != nil && *m.MediaURL == "" {
		m.MediaURL = nil
	}
	if m.MediaURL == nil {
		m.MediaType = nil
	} else if m.MediaType == nil || *m.MediaType == "" {
		if mt := MediaTypeFor(*m.MediaURL); mt != "" {
			m.MediaType = &mt
		} else {
			m.MediaType = nil
		}
	}

	if m.IsRead != 0 {
		m.IsRead = 1
	}
	m.Timestamp = m.Timestamp.UTC()
	return m
}

// NormalizeMessages applies NormalizeMessage to every element and never
// returns nil, so empty histories encode as [].
func NormalizeMessages(in []Message, adminName string) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		out = append(out, NormalizeMessage(m, adminName))
	}
	return out
}
