// Package utils 提供输入清理等通用工具
package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// 备注类字段的长度上限(按字符计)
const (
	MaxRemarksLength = 1000
	MaxReasonLength  = 500
)

// SanitizeString 移除控制字符, 保留换行符和制表符
func SanitizeString(input string) string {
	var result strings.Builder
	result.Grow(len(input))
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

// CleanText 清理可选的自由文本: 去除首尾空白和控制字符并校验长度, 空串合法
func CleanText(s string, maxLen int) (string, error) {
	cleaned := strings.TrimSpace(SanitizeString(s))
	if maxLen > 0 && utf8.RuneCountInString(cleaned) > maxLen {
		return "", ErrStringTooLong
	}
	return cleaned, nil
}

// TrimAndValidate 清理必填文本, 空串返回 ErrEmptyString
func TrimAndValidate(s string, maxLen int) (string, error) {
	cleaned, err := CleanText(s, maxLen)
	if err != nil {
		return "", err
	}
	if cleaned == "" {
		return "", ErrEmptyString
	}
	return cleaned, nil
}

// 错误定义
var (
	ErrEmptyString   = &ValidationError{Code: "EMPTY_STRING", Message: "string cannot be empty"}
	ErrStringTooLong = &ValidationError{Code: "STRING_TOO_LONG", Message: "string exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
