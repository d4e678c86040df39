package sanitizer

import (
	"strings"
)

const MaxFreeTextRunes = 1000

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

func SanitizeRoomType(input string) string {
	return Pipeline{stripControl, TrimAndNormalize}.Apply(input)
}

func SanitizeFreeText(input string) string {
	p := Pipeline{
		func(s string) string { return strings.ReplaceAll(s, "\r\n", "\n") },
		stripControl,
		strings.TrimSpace,
		func(s string) string { return truncateRunes(s, MaxFreeTextRunes) },
	}
	return p.Apply(input)
}

func SanitizeID(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}
