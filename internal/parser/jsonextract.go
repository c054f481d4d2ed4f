package parser

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	codeFenceRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON 从LLM输出中宽容地抽取JSON对象。
// 小模型常把JSON包在代码围栏或解释性文字里，这里按最外层花括号
// 配对截取，并去掉尾逗号，尽量把输出救成可解析的JSON
func ExtractJSON(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("LLM输出为空")
	}

	// 先剥代码围栏
	if m := codeFenceRe.FindStringSubmatch(content); len(m) > 1 {
		content = strings.TrimSpace(m[1])
	}

	start := strings.Index(content, "{")
	if start < 0 {
		return "", fmt.Errorf("LLM输出中没有JSON对象")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return trailingComma.ReplaceAllString(content[start:i+1], "$1"), nil
				}
			}
		}
	}

	return "", fmt.Errorf("JSON对象花括号不配对")
}
