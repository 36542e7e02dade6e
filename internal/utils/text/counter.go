// Package text provides utilities for text processing and analysis.
package text

// CountRunes counts the number of Unicode characters (runes) in the given
// text. The extraction stage records this as an article's word_count:
// bodies in this pipeline are predominantly Chinese, where byte length
// wildly overstates content size, so the metric counts runes rather than
// bytes.
//
// Examples:
//
//	CountRunes("hello")          // returns 5 (ASCII text)
//	CountRunes("中文内容")        // returns 4 (Chinese text)
//	CountRunes("hello世界")       // returns 7 (mixed text)
//	CountRunes("")               // returns 0 (empty string)
func CountRunes(text string) int {
	return len([]rune(text))
}
