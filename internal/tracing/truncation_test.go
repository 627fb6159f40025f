package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeAttributeValueMasksSensitiveNames(t *testing.T) {
	assert.Equal(t, "zh*************om", SafeAttributeValue("email", "zhang@example.com", DefaultMaxLength))
	assert.Equal(t, "张*", SafeAttributeValue("full_name", "张三", DefaultMaxLength))
	assert.Equal(t, "王*明", SafeAttributeValue("姓名", "王小明", DefaultMaxLength))
}

func TestSafeAttributeValueTruncatesNonSensitive(t *testing.T) {
	long := strings.Repeat("a", 50)
	got := SafeAttributeValue("file_hash", long, 21)
	assert.Contains(t, got, "...")
	assert.LessOrEqual(t, len([]rune(got)), 21)

	assert.Equal(t, "short", SafeAttributeValue("file_hash", "short", 21))
}

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("甲"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "13*******90", MaskPII("13800000090"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))

	got := TruncateString(strings.Repeat("x", 300), 11)
	assert.Equal(t, "xxxx...xxxx", got)
}

func TestSafeCVContent(t *testing.T) {
	text := strings.Repeat("简", 200)
	got := SafeCVContent(text)
	assert.Contains(t, got, "...")
	assert.LessOrEqual(t, len([]rune(got)), MaxCVLength)
}
