// SPDX-License-Identifier: MIT

package types

import "strings"

// Platform identifies the video hosting site a URL belongs to.
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformBilibili Platform = "bilibili"
	PlatformUnknown  Platform = "unknown"
)

// String returns the string representation of the platform.
func (p Platform) String() string {
	return string(p)
}

// DetectPlatform classifies a video URL by its host markers. URLs that match
// neither supported platform return PlatformUnknown; the downloader treats
// that as a hard error.
func DetectPlatform(url string) Platform {
	switch {
	case strings.Contains(url, "youtube.com"), strings.Contains(url, "youtu.be"):
		return PlatformYouTube
	case strings.Contains(url, "bilibili.com"), strings.Contains(url, "b23.tv"):
		return PlatformBilibili
	default:
		return PlatformUnknown
	}
}
