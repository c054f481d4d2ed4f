package fielddict // 字段词典：语义字段名到档案取值路径、选择器模板和分类关键词的静态映射

import (
	"strings"

	"apply-agent-go/internal/types"
)

// DefaultPolicy 档案中取不到值时的缺省策略
type DefaultPolicy string

const (
	// PolicyLeaveBlank 留空
	PolicyLeaveBlank DefaultPolicy = "leave_blank"
	// PolicyUseProfile 走档案取值路径（首个非空者胜出）
	PolicyUseProfile DefaultPolicy = "use_profile"
	// PolicyDerive 由其他字段推导（例如full_name由first+last拼接）
	PolicyDerive DefaultPolicy = "derive"
)

// ProfileSource 档案取值函数，取不到值返回空串
type ProfileSource func(p *types.Profile) string

// Entry 词典中一个语义字段的完整定义
type Entry struct {
	// Name 语义字段名，词表内唯一
	Name string

	// Keywords 用于语义分类的短语片段（小写）。分类时长短语优先
	Keywords []string

	// Selectors CSS选择器模板，按特异性从高到低排列，注入脚本按序尝试
	Selectors []string

	// Sources 档案取值路径，按优先级排列，首个非空者胜出
	Sources []ProfileSource

	// Policy 缺省策略
	Policy DefaultPolicy
}

// 通用兜底语义名
const (
	CatchAllText     = "text_field"
	CatchAllTextarea = "text_area"
	CatchAllSelect   = "dropdown_field"
	CatchAllFile     = "file_upload"
)

// entries 词典本体。顺序无关；分类按关键词长度决定优先级
var entries = []Entry{
	{
		Name:     "full_name",
		Keywords: []string{"full name", "your name", "legal name", "complete name"},
		Selectors: []string{
			"input[name*='name' i][name*='full' i]",
			"input[autocomplete='name']",
			"input[name='name']",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.FullName() }},
		Policy:  PolicyDerive,
	},
	{
		Name:     "first_name",
		Keywords: []string{"first name", "given name", "forename"},
		Selectors: []string{
			"input[name*='first' i]",
			"input[autocomplete='given-name']",
			"input[id*='first' i]",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.FirstName() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "last_name",
		Keywords: []string{"last name", "family name", "surname"},
		Selectors: []string{
			"input[name*='last' i]",
			"input[autocomplete='family-name']",
			"input[id*='last' i]",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.LastName() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "email",
		Keywords: []string{"email address", "e-mail", "email"},
		Selectors: []string{
			"input[type='email']",
			"input[autocomplete='email']",
			"input[name*='email' i]",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.Email() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "phone",
		Keywords: []string{"phone number", "mobile number", "telephone", "phone", "mobile"},
		Selectors: []string{
			"input[type='tel']",
			"input[autocomplete='tel']",
			"input[name*='phone' i]",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.Phone() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name: "job_location_preference",
		// 位置+申请意向的组合问题由分类器的专门规则优先命中这里
		Keywords: []string{
			"which location are you applying", "location you are applying",
			"preferred location", "location preference", "which office",
		},
		Selectors: []string{
			"select[name*='location' i]",
			"input[name*='location' i]",
		},
		Sources: []ProfileSource{
			func(p *types.Profile) string { return p.Preference("desired_location") },
			func(p *types.Profile) string { return p.CurrentLocation() },
		},
		Policy: PolicyUseProfile,
	},
	{
		Name:     "current_location",
		Keywords: []string{"current location", "where are you located", "where do you live", "location"},
		Selectors: []string{
			"input[name*='location' i]",
			"input[autocomplete='address-level2']",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.CurrentLocation() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "address",
		Keywords: []string{"street address", "mailing address", "home address", "address line", "address"},
		Selectors: []string{
			"input[autocomplete='street-address']",
			"input[name*='address' i]",
			"textarea[name*='address' i]",
		},
		Sources: []ProfileSource{
			func(p *types.Profile) string { return p.FullAddress() },
			func(p *types.Profile) string { return p.StreetAddress() },
		},
		Policy: PolicyUseProfile,
	},
	{
		Name:     "city",
		Keywords: []string{"city", "town"},
		Selectors: []string{
			"input[name*='city' i]",
			"input[autocomplete='address-level2']",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.City() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "state",
		Keywords: []string{"state or province", "state/province", "province", "state"},
		Selectors: []string{
			"input[name*='state' i]",
			"select[name*='state' i]",
			"input[autocomplete='address-level1']",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.State() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "zip_code",
		Keywords: []string{"zip code", "postal code", "zip", "postcode"},
		Selectors: []string{
			"input[name*='zip' i]",
			"input[name*='postal' i]",
			"input[autocomplete='postal-code']",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.ZipCode() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "address_country",
		Keywords: []string{"country of residence", "which country do you live", "country"},
		Selectors: []string{
			"select[name*='country' i]",
			"input[autocomplete='country-name']",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.AddressCountry() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name: "nationality",
		// 注意与address_country区分：国籍与居住国是两个字段
		Keywords: []string{"nationality", "citizenship", "citizen of", "country of citizenship"},
		Selectors: []string{
			"select[name*='nationality' i]",
			"select[name*='citizen' i]",
			"input[name*='nationality' i]",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.Nationality() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "current_company",
		Keywords: []string{"current company", "current employer", "present employer", "company name", "employer"},
		Selectors: []string{
			"input[name*='company' i]",
			"input[name*='employer' i]",
			"input[autocomplete='organization']",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.CurrentCompany() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "current_title",
		Keywords: []string{"current title", "current role", "job title", "current position", "designation"},
		Selectors: []string{
			"input[name*='title' i]",
			"input[autocomplete='organization-title']",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.CurrentTitle() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "linkedin_url",
		Keywords: []string{"linkedin profile", "linkedin url", "linkedin"},
		Selectors: []string{
			"input[name*='linkedin' i]",
			"input[name*='urls[LinkedIn]' i]",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.LinkedInURL() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "website",
		Keywords: []string{"personal website", "portfolio url", "github profile", "portfolio", "website", "github"},
		Selectors: []string{
			"input[name*='website' i]",
			"input[name*='portfolio' i]",
			"input[name*='github' i]",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.Website() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name: "visa_sponsorship",
		Keywords: []string{
			"require sponsorship", "visa sponsorship", "require visa",
			"authorized to work", "authorised to work", "work authorization",
			"legally authorized", "right to work", "work permit",
		},
		Selectors: []string{
			"select[name*='sponsor' i]",
			"select[name*='visa' i]",
			"select[name*='authoriz' i]",
		},
		Sources: []ProfileSource{
			func(p *types.Profile) string { return p.RequiresSponsorship() },
			func(p *types.Profile) string { return p.Preference("visa_sponsorship") },
		},
		Policy: PolicyUseProfile,
	},
	{
		Name:     "gender",
		Keywords: []string{"gender identity", "gender"},
		Selectors: []string{
			"select[name*='gender' i]",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.PersonalInformation.Gender }},
		Policy:  PolicyLeaveBlank,
	},
	{
		Name:     "language",
		Keywords: []string{"preferred language", "native language", "languages you speak", "language"},
		Selectors: []string{
			"select[name*='language' i]",
			"input[name*='language' i]",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.PrimaryLanguage() }},
		Policy:  PolicyUseProfile,
	},
	{
		Name:     "salary_expectation",
		Keywords: []string{"salary expectation", "expected salary", "desired salary", "compensation expectation"},
		Selectors: []string{
			"input[name*='salary' i]",
			"input[name*='compensation' i]",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.Preference("salary_expectation") }},
		Policy:  PolicyLeaveBlank,
	},
	{
		Name:     "notice_period",
		Keywords: []string{"notice period", "when can you start", "earliest start date", "start date"},
		Selectors: []string{
			"input[name*='notice' i]",
			"input[name*='start' i]",
		},
		Sources: []ProfileSource{
			func(p *types.Profile) string { return p.Preference("notice_period") },
			func(p *types.Profile) string { return p.Preference("earliest_start_date") },
		},
		Policy: PolicyLeaveBlank,
	},
	{
		Name:     "resume_file",
		Keywords: []string{"upload resume", "upload cv", "resume/cv", "attach resume", "resume", "curriculum vitae", "cv"},
		Selectors: []string{
			"input[type='file'][name*='resume' i]",
			"input[type='file'][name*='cv' i]",
			"input[type='file']",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return p.ResumeFileRef }},
		Policy:  PolicyLeaveBlank,
	},
	{
		Name:     "cover_letter_file",
		Keywords: []string{"upload cover letter", "attach cover letter", "cover letter"},
		Selectors: []string{
			"input[type='file'][name*='cover' i]",
			"textarea[name*='cover' i]",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return "" }},
		Policy:  PolicyLeaveBlank,
	},
	{
		Name: "additional_info",
		Keywords: []string{
			"additional information", "anything else", "additional comments",
			"why do you want to work", "why are you interested", "tell us about yourself",
		},
		Selectors: []string{
			"textarea[name*='additional' i]",
			"textarea[name*='comment' i]",
			"textarea",
		},
		Sources: []ProfileSource{func(p *types.Profile) string { return "" }},
		Policy:  PolicyLeaveBlank,
	},
	// --- 通用兜底：无关键词，仅按控件类型落入 ---
	{
		Name:      CatchAllText,
		Selectors: []string{"input[type='text']"},
		Sources:   []ProfileSource{func(p *types.Profile) string { return "" }},
		Policy:    PolicyLeaveBlank,
	},
	{
		Name:      CatchAllTextarea,
		Selectors: []string{"textarea"},
		Sources:   []ProfileSource{func(p *types.Profile) string { return "" }},
		Policy:    PolicyLeaveBlank,
	},
	{
		Name:      CatchAllSelect,
		Selectors: []string{"select"},
		Sources:   []ProfileSource{func(p *types.Profile) string { return "" }},
		Policy:    PolicyLeaveBlank,
	},
	{
		Name:      CatchAllFile,
		Selectors: []string{"input[type='file']"},
		Sources:   []ProfileSource{func(p *types.Profile) string { return "" }},
		Policy:    PolicyLeaveBlank,
	},
}

var byName = func() map[string]*Entry {
	m := make(map[string]*Entry, len(entries))
	for i := range entries {
		m[entries[i].Name] = &entries[i]
	}
	return m
}()

// Lookup 按语义名查词典。未知名字返回文本兜底项，保证查询永不失败
func Lookup(name string) *Entry {
	if e, ok := byName[baseName(name)]; ok {
		return e
	}
	return byName[CatchAllText]
}

// Known 判断语义名（允许带数字后缀）是否在词表内
func Known(name string) bool {
	_, ok := byName[baseName(name)]
	return ok
}

// All 返回全部词典项（只读用途）
func All() []Entry {
	return entries
}

// ResolveValue 按取值路径从档案取值，首个非空者胜出；全空返回空串
func ResolveValue(name string, p *types.Profile) string {
	e := Lookup(name)
	for _, src := range e.Sources {
		if v := strings.TrimSpace(src(p)); v != "" {
			return v
		}
	}
	return ""
}

// baseName 去掉消歧后缀（email_2 -> email）
func baseName(name string) string {
	if idx := strings.LastIndex(name, "_"); idx > 0 {
		suffix := name[idx+1:]
		if suffix != "" && isDigits(suffix) {
			return name[:idx]
		}
	}
	return name
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// BaseName 导出的后缀剥离工具，供分类和校验复用
func BaseName(name string) string {
	return baseName(name)
}
