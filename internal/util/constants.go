package util

// 评语格式
const (
	FormatPlain    = 2
	FormatHTML     = 1
	FormatMarkdown = 4
)
