package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalApplyURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		platform ATSPlatform
		want     string
	}{
		{"Lever职位页补apply", "https://jobs.lever.co/acme/abc", PlatformLever, "https://jobs.lever.co/acme/abc/apply"},
		{"Lever末尾斜杠", "https://jobs.lever.co/acme/abc/", PlatformLever, "https://jobs.lever.co/acme/abc/apply"},
		{"已经是apply页", "https://jobs.lever.co/acme/abc/apply", PlatformLever, "https://jobs.lever.co/acme/abc/apply"},
		{"其他平台原样返回", "https://boards.greenhouse.io/acme/jobs/1", PlatformGreenhouse, "https://boards.greenhouse.io/acme/jobs/1"},
		{"未知平台原样返回", "https://example.com/job", PlatformUnknown, "https://example.com/job"},
		{"空URL不炸", "", PlatformLever, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalApplyURL(tt.url, tt.platform)
			assert.Equal(t, tt.want, got)
			// 重复规范化结果不变
			assert.Equal(t, tt.want, CanonicalApplyURL(got, tt.platform), "规范化必须幂等")
		})
	}
}

func TestParsePlatform(t *testing.T) {
	assert.Equal(t, PlatformLever, ParsePlatform(" Lever "))
	assert.Equal(t, PlatformGreenhouse, ParsePlatform("GREENHOUSE"))
	assert.Equal(t, PlatformUnknown, ParsePlatform("craigslist"))
	assert.Equal(t, PlatformUnknown, ParsePlatform(""))
}

func TestProfileAccessorsOnEmptyProfile(t *testing.T) {
	var p Profile
	// 空档案的访问器一律返回空串，调用方不需要判存在性
	assert.Empty(t, p.FullName())
	assert.Empty(t, p.Email())
	assert.Empty(t, p.CurrentCompany())
	assert.Empty(t, p.FullAddress())
	assert.Empty(t, p.Preference("visa_sponsorship"))
}
