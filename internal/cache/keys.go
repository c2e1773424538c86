// SPDX-License-Identifier: MIT

package cache

import (
	"crypto/md5" // #nosec G401 -- fingerprinting only, not security
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Key derivation produces stable fingerprint strings for each stage input.
// Equal inputs always yield equal keys; the hex digest keeps keys at a
// fixed length regardless of input size (transcripts can be large).

func fingerprint(canonical string) string {
	sum := md5.Sum([]byte(canonical)) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the hex MD5 of s. Stages use it to derive stable
// filesystem stems for downloaded and extracted artifacts.
func Fingerprint(s string) string {
	return fingerprint(s)
}

// DownloadKey derives the cache key for a download stage input.
func DownloadKey(url string) string {
	return fingerprint("download:" + url)
}

// ExtractKey derives the cache key for an extract stage input.
func ExtractKey(videoPath string) string {
	return fingerprint("extract:" + videoPath)
}

// TranscriptKey derives the cache key for a transcribe stage input.
func TranscriptKey(audioPath string) string {
	return fingerprint("transcript:" + audioPath)
}

// SummaryKey derives the cache key for a summarize stage input. The model
// name participates so summaries from different models do not collide.
func SummaryKey(transcript, model string) string {
	if model == "" {
		model = "default"
	}
	return fingerprint("summary:" + transcript + ":" + model)
}

// Key derives a generic cache key from positional and named arguments.
// Named arguments are sorted by name so map iteration order cannot change
// the result.
func Key(args []any, named map[string]any) string {
	parts := make([]string, 0, len(args)+len(named))
	for _, a := range args {
		parts = append(parts, fmt.Sprintf("%v", a))
	}
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, named[name]))
	}
	return fingerprint(strings.Join(parts, "|"))
}
