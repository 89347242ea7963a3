package fileanalysis

import (
	"context"

	"github.com/duskwatch/duskwatch/internal/model"
)

// StringsExtractor pulls printable ASCII runs of at least minLen bytes out
// of a file, capping the number of samples returned, generalizing the
// original implementation's `strings`-command wrapper into pure Go.
type StringsExtractor struct {
	minLen     int
	maxSamples int
}

// NewStringsExtractor builds a StringsExtractor with the given minimum run
// length and sample cap.
func NewStringsExtractor(minLen, maxSamples int) *StringsExtractor {
	if minLen < 1 {
		minLen = 4
	}
	return &StringsExtractor{minLen: minLen, maxSamples: maxSamples}
}

// Available always returns true: this is pure Go with no external tool.
func (s *StringsExtractor) Available() bool { return true }

// Extract scans content for printable runs.
func (s *StringsExtractor) Extract(_ context.Context, content []byte) model.StringsResult {
	var samples []string
	count := 0

	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		runLen := end - start
		if runLen >= s.minLen {
			count++
			if len(samples) < s.maxSamples {
				samples = append(samples, string(content[start:end]))
			}
		}
		start = -1
	}

	for i, b := range content {
		if isPrintable(b) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(content))

	return model.StringsResult{
		Success: true,
		Count:   count,
		Samples: samples,
	}
}

func isPrintable(b byte) bool {
	return b >= 0x20 && b < 0x7f
}
