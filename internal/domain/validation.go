package domain

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidUsername 用户名不符合格式要求
	ErrInvalidUsername = errors.New("invalid username")
)

// 用户自选用户名格式：小写字母、数字、下划线，3-20 位
var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// GeneratedUsernamePrefix 系统生成用户名的固定前缀
//
// 生成形式为 anon + 5 位十进制数字（如 anon04217），天然满足自选格式。
const GeneratedUsernamePrefix = "anon"

// NormalizeUsername 归一化用户输入的用户名（去空白并转小写）
//
// 必须在校验之前调用，大小写折叠先于格式匹配。
func NormalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateUsername 校验归一化后的用户名是否合法
func ValidateUsername(candidate string) error {
	if !usernamePattern.MatchString(candidate) {
		return ErrInvalidUsername
	}
	return nil
}

// IsValidUsername 返回候选用户名是否符合格式
func IsValidUsername(candidate string) bool {
	return usernamePattern.MatchString(candidate)
}
