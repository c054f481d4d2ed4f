package types

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Profile 候选人档案的规范结构。
// 这是核心流程读取候选人数据的唯一入口：字符串字段缺省为空串，
// 列表字段缺省为空列表，调用方不需要做存在性判断。
type Profile struct {
	ProfileID string `json:"profile_id"`
	OwnerID   string `json:"owner_id"`

	PersonalInformation PersonalInformation `json:"personal_information"`
	WorkExperience      []WorkExperience    `json:"work_experience"`
	Education           []Education         `json:"education"`
	Skills              []string            `json:"skills"`
	Languages           []Language          `json:"languages"`
	JobPreferences      map[string]string   `json:"job_preferences"`
	Achievements        []string            `json:"achievements"`
	Certificates        []string            `json:"certificates"`

	// 简历原始文件在对象存储中的引用（可为空）
	ResumeFileRef string `json:"resume_file_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PersonalInformation 个人信息块
type PersonalInformation struct {
	BasicInformation   BasicInformation   `json:"basic_information"`
	ContactInformation ContactInformation `json:"contact_information"`
	Address            Address            `json:"address"`
	Citizenship        Citizenship        `json:"citizenship"`
	Gender             string             `json:"gender"`
}

// BasicInformation 基本信息
type BasicInformation struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ContactInformation 联系方式
type ContactInformation struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	LinkedInURL string `json:"linkedin_url"`
	Website     string `json:"website"`
}

// Address 邮寄地址。Country是邮寄地址国家，与国籍(Citizenship.Nationality)是两个独立概念
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// Citizenship 国籍与工作许可信息
type Citizenship struct {
	Nationality         string `json:"nationality"`
	WorkAuthorization   string `json:"work_authorization"`   // 例如 "US Citizen", "H1B", "Requires sponsorship"
	RequiresSponsorship string `json:"requires_sponsorship"` // "yes" / "no" / ""
}

// WorkExperience 一段工作经历，按时间倒序存储（第一条为最近）
type WorkExperience struct {
	Company     string `json:"company"`
	Title       string `json:"title"`
	Location    string `json:"location"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Description string `json:"description"`
	IsCurrent   bool   `json:"is_current"`
}

// Education 一段教育经历，按时间倒序存储
type Education struct {
	Institution  string `json:"institution"`
	Degree       string `json:"degree"`
	FieldOfStudy string `json:"field_of_study"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	GPA          string `json:"gpa"`
}

// Language 语言能力
type Language struct {
	Language    string `json:"language"`
	Proficiency string `json:"proficiency"` // 例如 "native", "fluent", "conversational"
}

// PreferenceKeys job_preferences允许的键集合（固定词表）
var PreferenceKeys = map[string]struct{}{
	"desired_role":        {},
	"desired_location":    {},
	"remote_preference":   {},
	"salary_expectation":  {},
	"notice_period":       {},
	"willing_to_relocate": {},
	"visa_sponsorship":    {},
	"earliest_start_date": {},
}

// IsValidPreferenceKey 判断偏好键是否在固定词表内
func IsValidPreferenceKey(key string) bool {
	_, ok := PreferenceKeys[key]
	return ok
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateEmail 仅在邮箱非空时校验格式
func (p *Profile) ValidateEmail() bool {
	email := p.PersonalInformation.ContactInformation.Email
	if email == "" {
		return true
	}
	return emailPattern.MatchString(email)
}

// Normalize 保证列表字段非nil、偏好键合法，使档案满足规范schema的约定
func (p *Profile) Normalize() {
	if p.WorkExperience == nil {
		p.WorkExperience = []WorkExperience{}
	}
	if p.Education == nil {
		p.Education = []Education{}
	}
	if p.Skills == nil {
		p.Skills = []string{}
	}
	if p.Languages == nil {
		p.Languages = []Language{}
	}
	if p.Achievements == nil {
		p.Achievements = []string{}
	}
	if p.Certificates == nil {
		p.Certificates = []string{}
	}
	if p.JobPreferences == nil {
		p.JobPreferences = map[string]string{}
	} else {
		for k := range p.JobPreferences {
			if !IsValidPreferenceKey(k) {
				delete(p.JobPreferences, k)
			}
		}
	}
}

// --- 访问器：缺失一律返回空串/空列表，调用处不做存在性分支 ---

// FirstName 名
func (p *Profile) FirstName() string {
	return p.PersonalInformation.BasicInformation.FirstName
}

// LastName 姓
func (p *Profile) LastName() string {
	return p.PersonalInformation.BasicInformation.LastName
}

// FullName 姓名拼接，两部分都为空时返回空串
func (p *Profile) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName()) + " " + strings.TrimSpace(p.LastName()))
}

// Email 邮箱
func (p *Profile) Email() string {
	return p.PersonalInformation.ContactInformation.Email
}

// Phone 电话
func (p *Profile) Phone() string {
	return p.PersonalInformation.ContactInformation.Phone
}

// LinkedInURL 领英主页
func (p *Profile) LinkedInURL() string {
	return p.PersonalInformation.ContactInformation.LinkedInURL
}

// Website 个人网站
func (p *Profile) Website() string {
	return p.PersonalInformation.ContactInformation.Website
}

// City 城市
func (p *Profile) City() string {
	return p.PersonalInformation.Address.City
}

// State 州/省
func (p *Profile) State() string {
	return p.PersonalInformation.Address.State
}

// ZipCode 邮编
func (p *Profile) ZipCode() string {
	return p.PersonalInformation.Address.ZipCode
}

// AddressCountry 邮寄地址国家
func (p *Profile) AddressCountry() string {
	return p.PersonalInformation.Address.Country
}

// StreetAddress 街道地址
func (p *Profile) StreetAddress() string {
	return p.PersonalInformation.Address.Street
}

// FullAddress 地址拼接：street, city, state zip, country（跳过空段）
func (p *Profile) FullAddress() string {
	addr := p.PersonalInformation.Address
	var parts []string
	if addr.Street != "" {
		parts = append(parts, addr.Street)
	}
	if addr.City != "" {
		parts = append(parts, addr.City)
	}
	region := strings.TrimSpace(addr.State + " " + addr.ZipCode)
	if region != "" {
		parts = append(parts, region)
	}
	if addr.Country != "" {
		parts = append(parts, addr.Country)
	}
	return strings.Join(parts, ", ")
}

// CurrentLocation 当前所在地：优先 city, state，都为空时回退到国家
func (p *Profile) CurrentLocation() string {
	addr := p.PersonalInformation.Address
	loc := strings.TrimSpace(addr.City)
	if addr.State != "" {
		if loc != "" {
			loc += ", "
		}
		loc += addr.State
	}
	if loc == "" {
		loc = addr.Country
	}
	return loc
}

// Nationality 国籍
func (p *Profile) Nationality() string {
	return p.PersonalInformation.Citizenship.Nationality
}

// RequiresSponsorship 是否需要签证担保（"yes"/"no"/""）
func (p *Profile) RequiresSponsorship() string {
	return p.PersonalInformation.Citizenship.RequiresSponsorship
}

// CurrentCompany 最近一段工作经历的公司；无工作经历返回空串
func (p *Profile) CurrentCompany() string {
	if len(p.WorkExperience) == 0 {
		return ""
	}
	return p.WorkExperience[0].Company
}

// CurrentTitle 最近一段工作经历的职位；无工作经历返回空串
func (p *Profile) CurrentTitle() string {
	if len(p.WorkExperience) == 0 {
		return ""
	}
	return p.WorkExperience[0].Title
}

// PrimaryLanguage 第一语言；未填写返回空串
func (p *Profile) PrimaryLanguage() string {
	if len(p.Languages) == 0 {
		return ""
	}
	return p.Languages[0].Language
}

// Preference 返回指定键的求职偏好值，缺失返回空串
func (p *Profile) Preference(key string) string {
	if p.JobPreferences == nil {
		return ""
	}
	return p.JobPreferences[key]
}

// SkillsJoined 技能列表按逗号拼接
func (p *Profile) SkillsJoined() string {
	return strings.Join(p.Skills, ", ")
}

// FlatSummary 将档案压平为给LLM看的键值对，空值字段省略。
// 键名稳定，便于提示词复现。
func (p *Profile) FlatSummary() []KV {
	var kvs []KV
	add := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			kvs = append(kvs, KV{Key: key, Value: value})
		}
	}

	add("full_name", p.FullName())
	add("first_name", p.FirstName())
	add("last_name", p.LastName())
	add("email", p.Email())
	add("phone", p.Phone())
	add("current_location", p.CurrentLocation())
	add("address", p.FullAddress())
	add("nationality", p.Nationality())
	add("work_authorization", p.PersonalInformation.Citizenship.WorkAuthorization)
	add("requires_sponsorship", p.RequiresSponsorship())
	add("gender", p.PersonalInformation.Gender)
	add("current_company", p.CurrentCompany())
	add("current_title", p.CurrentTitle())
	add("linkedin_url", p.LinkedInURL())
	add("website", p.Website())
	add("skills", p.SkillsJoined())

	for i, exp := range p.WorkExperience {
		if i >= 3 { // 只带最近三段经历，控制提示词长度
			break
		}
		summary := strings.TrimSpace(exp.Title + " at " + exp.Company)
		if exp.StartDate != "" || exp.EndDate != "" {
			summary += " (" + exp.StartDate + " - " + exp.EndDate + ")"
		}
		add("work_experience_"+itoa(i+1), summary)
	}
	for i, edu := range p.Education {
		if i >= 2 {
			break
		}
		summary := strings.TrimSpace(edu.Degree + " in " + edu.FieldOfStudy + ", " + edu.Institution)
		add("education_"+itoa(i+1), summary)
	}
	for _, lang := range p.Languages {
		if lang.Language != "" {
			add("language_"+strings.ToLower(lang.Language), lang.Proficiency)
		}
	}
	for _, kv := range sortedPreferenceKVs(p.JobPreferences) {
		add("preference_"+kv.Key, kv.Value)
	}

	return kvs
}

// KV 稳定有序的键值对
type KV struct {
	Key   string
	Value string
}

// sortedPreferenceKVs 按键名排序返回偏好，保证FlatSummary输出顺序稳定
func sortedPreferenceKVs(prefs map[string]string) []KV {
	if len(prefs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kvs := make([]KV, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, KV{Key: k, Value: prefs[k]})
	}
	return kvs
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
