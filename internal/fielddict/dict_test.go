package fielddict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apply-agent-go/internal/types"
)

func sampleProfile() *types.Profile {
	return &types.Profile{
		ProfileID: "p-1",
		PersonalInformation: types.PersonalInformation{
			BasicInformation: types.BasicInformation{FirstName: "Ada", LastName: "Lovelace"},
			ContactInformation: types.ContactInformation{
				Email:       "ada@example.com",
				Phone:       "+44 20 1234 5678",
				LinkedInURL: "https://linkedin.com/in/ada",
			},
			Address:     types.Address{City: "London", State: "England", ZipCode: "EC1A", Country: "United Kingdom"},
			Citizenship: types.Citizenship{Nationality: "British", RequiresSponsorship: "No"},
		},
		WorkExperience: []types.WorkExperience{
			{Company: "Analytical Engines Ltd", Title: "Principal Engineer", IsCurrent: true},
		},
		JobPreferences: map[string]string{
			"desired_location": "Remote - UK",
		},
	}
}

func TestLookupUnknownNameFallsBack(t *testing.T) {
	e := Lookup("no_such_field")
	require.NotNil(t, e, "查询不应返回nil")
	assert.Equal(t, CatchAllText, e.Name, "未知名字应落入文本兜底项")
}

func TestLookupStripsNumericSuffix(t *testing.T) {
	e := Lookup("email_2")
	require.NotNil(t, e)
	assert.Equal(t, "email", e.Name, "消歧后缀不应影响词典命中")

	// 非数字后缀不剥离
	assert.Equal(t, CatchAllText, Lookup("email_home").Name)
}

func TestResolveValueFirstNonEmptyPathWins(t *testing.T) {
	p := sampleProfile()

	// job_location_preference优先取求职偏好，其次取当前所在地
	assert.Equal(t, "Remote - UK", ResolveValue("job_location_preference", p))

	delete(p.JobPreferences, "desired_location")
	assert.Equal(t, "London, England", ResolveValue("job_location_preference", p),
		"偏好为空时回退到当前所在地（City, State格式）")
}

func TestResolveValueEmptyProfile(t *testing.T) {
	p := &types.Profile{}
	assert.Empty(t, ResolveValue("email", p))
	assert.Empty(t, ResolveValue("current_company", p))
	assert.Empty(t, ResolveValue("no_such_field", p), "未知名字也不应报错")
}

func TestResolveValueCommonFields(t *testing.T) {
	p := sampleProfile()
	assert.Equal(t, "Ada", ResolveValue("first_name", p))
	assert.Equal(t, "Lovelace", ResolveValue("last_name", p))
	assert.Equal(t, "Ada Lovelace", ResolveValue("full_name", p))
	assert.Equal(t, "ada@example.com", ResolveValue("email", p))
	assert.Equal(t, "Analytical Engines Ltd", ResolveValue("current_company", p))
	assert.Equal(t, "Principal Engineer", ResolveValue("current_title", p))
	assert.Equal(t, "British", ResolveValue("nationality", p))
	assert.Equal(t, "United Kingdom", ResolveValue("address_country", p), "居住国与国籍是独立字段")
	assert.Equal(t, "No", ResolveValue("visa_sponsorship", p))
}

func TestEntriesConsistency(t *testing.T) {
	seen := make(map[string]bool)
	for _, e := range All() {
		assert.NotEmpty(t, e.Name)
		assert.False(t, seen[e.Name], "语义名重复: %s", e.Name)
		seen[e.Name] = true
		assert.NotEmpty(t, e.Selectors, "%s 缺少选择器模板", e.Name)
		assert.NotEmpty(t, e.Sources, "%s 缺少取值路径", e.Name)
	}
	for _, catchAll := range []string{CatchAllText, CatchAllTextarea, CatchAllSelect, CatchAllFile} {
		assert.True(t, seen[catchAll], "缺少兜底项 %s", catchAll)
	}
}
