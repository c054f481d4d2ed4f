package reasoner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apply-agent-go/internal/agent"
	"apply-agent-go/internal/parser"
	"apply-agent-go/internal/types"
)

func testProfile() *types.Profile {
	return &types.Profile{
		ProfileID: "p-1",
		PersonalInformation: types.PersonalInformation{
			BasicInformation:   types.BasicInformation{FirstName: "Ada", LastName: "Lovelace"},
			ContactInformation: types.ContactInformation{Email: "ada@example.com", Phone: "+44 20 1234"},
			Address:            types.Address{City: "London", Country: "United Kingdom"},
			Citizenship:        types.Citizenship{Nationality: "British", RequiresSponsorship: "No"},
		},
		WorkExperience: []types.WorkExperience{{Company: "Acme", Title: "Engineer", IsCurrent: true}},
	}
}

func testJob() *types.Job {
	return &types.Job{JobID: "j-1", Title: "Backend Engineer", Company: "Acme", Description: "Go services."}
}

// normalize 测试辅助：把原始字段过一遍规范化器
func normalize(t *testing.T, fields []types.RawFormField) *types.FormDescriptor {
	t.Helper()
	desc, _, err := parser.NewNormalizer(10, 5).Normalize(&types.RawFormDescriptor{Fields: fields})
	require.NoError(t, err)
	return desc
}

func testOpts() Options {
	return Options{MaxRetries: 1, RetryWait: time.Millisecond, CallTimeout: time.Second, JobSummaryCap: 1500}
}

func TestMapFieldsDeterministicSkipsLLM(t *testing.T) {
	mock := &agent.MockChatModel{Response: `{"field_mappings": []}`}
	r := NewReasoner(mock, testOpts())

	desc := normalize(t, []types.RawFormField{
		{ID: "f1", Question: "Email Address", Kind: "email", Required: true},
		{ID: "f2", Question: "First Name", Kind: "text"},
	})

	set, err := r.MapFields(context.Background(), desc, testProfile(), testJob())
	require.NoError(t, err)
	require.Len(t, set.Mappings, 2)

	assert.Equal(t, 0, mock.CallCount, "全部字段确定性解析时不应调用LLM")
	assert.Equal(t, "ada@example.com", set.Mappings[0].Value)
	assert.Equal(t, types.ProvenanceDeterministic, set.Mappings[0].Provenance)
	assert.Equal(t, "Ada", set.Mappings[1].Value)
	assert.Empty(t, set.NeedsUserInput)
}

func TestMapFieldsValidatesLLMOptions(t *testing.T) {
	mock := &agent.MockChatModel{Response: `{
		"field_mappings": [
			{"semantic_name": "text_field", "value": "Hogwarts", "confidence": 0.9, "reasoning": "made up"},
			{"semantic_name": "dropdown_field", "value": "maybe", "confidence": 0.8}
		]
	}`}
	r := NewReasoner(mock, testOpts())

	desc := normalize(t, []types.RawFormField{
		{ID: "q1", Question: "Favourite wizard school", Kind: "text"},
		{ID: "q2", Question: "Do you enjoy remote work", Kind: "select", Options: []string{"Yes", "No"}, Required: true},
	})

	set, err := r.MapFields(context.Background(), desc, testProfile(), testJob())
	require.NoError(t, err)
	assert.Equal(t, 1, mock.CallCount)

	assert.Equal(t, "Hogwarts", set.Mappings[0].Value)
	assert.Equal(t, types.ProvenanceLLM, set.Mappings[0].Provenance)

	// "maybe"不在选项中，必须unresolved而非编造
	assert.Equal(t, types.ProvenanceUnresolved, set.Mappings[1].Provenance)
	assert.Empty(t, set.Mappings[1].Value)
	assert.Equal(t, []string{"dropdown_field"}, set.NeedsUserInput, "必填且无法解析的字段应要求人工补充")
}

func TestMapFieldsLongSelectUsesFullOptionSet(t *testing.T) {
	options := make([]string, 0, 30)
	for _, c := range []string{
		"Austria", "Belgium", "Bulgaria", "Croatia", "Cyprus", "Czechia", "Denmark",
		"Estonia", "Finland", "France", "Germany", "Greece", "Hungary", "Ireland",
		"Italy", "Latvia", "Lithuania", "Luxembourg", "Malta", "Netherlands",
		"Poland", "Portugal", "Romania", "Slovakia", "Slovenia", "Spain", "Sweden",
		"Norway", "Iceland", "United Kingdom",
	} {
		options = append(options, c)
	}

	// 档案国籍British不在关键词值里，让LLM来答
	mock := &agent.MockChatModel{Response: `{
		"field_mappings": [{"semantic_name": "address_country", "value": "United Kingdom", "confidence": 0.95}]
	}`}
	r := NewReasoner(mock, testOpts())

	desc := normalize(t, []types.RawFormField{
		{ID: "c", Question: "Country", Kind: "select", Options: options},
	})
	require.Equal(t, types.KindSelectLong, desc.Fields[0].Kind)

	// 档案居住国设为样本之外也能命中完整选项集
	p := testProfile()
	p.PersonalInformation.Address.Country = ""

	set, err := r.MapFields(context.Background(), desc, p, testJob())
	require.NoError(t, err)
	assert.Equal(t, "United Kingdom", set.Mappings[0].Value)
	assert.Equal(t, types.ProvenanceLLM, set.Mappings[0].Provenance)
}

func TestMapFieldsFallsBackWhenLLMUnavailable(t *testing.T) {
	mock := &agent.MockChatModel{Err: errors.New("connection refused")}
	r := NewReasoner(mock, testOpts())

	desc := normalize(t, []types.RawFormField{
		{ID: "f1", Question: "Email Address", Kind: "email"},
		{ID: "f2", Question: "Nationality", Kind: "select", Options: []string{"British", "French"}},
		{ID: "f3", Question: "Tell us something fun", Kind: "textarea", Required: true},
	})
	// 让国籍字段绕开确定性短路，模拟需要LLM的场景
	desc.Fields[1].Confidence = parser.ConfidenceCatchAll

	set, err := r.MapFields(context.Background(), desc, testProfile(), testJob())
	require.NoError(t, err, "LLM故障不应让整个映射失败")
	assert.Equal(t, 2, mock.CallCount, "可重试错误应恰好重试一次")

	// email走了确定性路径，不受影响
	assert.Equal(t, types.ProvenanceDeterministic, set.Mappings[0].Provenance)

	// 国籍回退到词典取值，来源标注default
	assert.Equal(t, "British", set.Mappings[1].Value)
	assert.Equal(t, types.ProvenanceDefault, set.Mappings[1].Provenance)

	// 自由文本无词典取值，unresolved且进入人工补充清单
	assert.Equal(t, types.ProvenanceUnresolved, set.Mappings[2].Provenance)
	assert.Contains(t, set.NeedsUserInput, set.Mappings[2].SemanticName)
}

func TestMapFieldsNoRetryOnFatalError(t *testing.T) {
	mock := &agent.MockChatModel{Err: errors.New("API 请求失败，状态 401 Unauthorized: bad key")}
	r := NewReasoner(mock, testOpts())

	desc := normalize(t, []types.RawFormField{
		{ID: "q", Question: "Anything else?", Kind: "textarea"},
	})

	set, err := r.MapFields(context.Background(), desc, testProfile(), testJob())
	require.NoError(t, err)
	assert.Equal(t, 1, mock.CallCount, "鉴权类错误重试无意义")
	assert.Equal(t, types.ProvenanceUnresolved, set.Mappings[0].Provenance)
}

func TestMapFieldsRetriesUnparsableOutput(t *testing.T) {
	mock := &agent.MockChatModel{Responses: []string{
		"抱歉，我无法以JSON回答。",
		`{"field_mappings": [{"semantic_name": "text_area", "value": "I love Go.", "confidence": 0.6}]}`,
	}}
	r := NewReasoner(mock, testOpts())

	desc := normalize(t, []types.RawFormField{
		{ID: "q", Question: "Why do you code?", Kind: "textarea"},
	})

	set, err := r.MapFields(context.Background(), desc, testProfile(), testJob())
	require.NoError(t, err)
	assert.Equal(t, 2, mock.CallCount)
	assert.Equal(t, "I love Go.", set.Mappings[0].Value)
	assert.Equal(t, types.ProvenanceLLM, set.Mappings[0].Provenance)
}

func TestMapFieldsDiscardsUnknownSemanticNames(t *testing.T) {
	mock := &agent.MockChatModel{Response: `{
		"field_mappings": [
			{"semantic_name": "shoe_size", "value": "42"},
			{"semantic_name": "text_field", "value": "ok", "confidence": 0.5}
		]
	}`}
	r := NewReasoner(mock, testOpts())

	desc := normalize(t, []types.RawFormField{
		{ID: "q", Question: "Misc question", Kind: "text"},
	})

	set, err := r.MapFields(context.Background(), desc, testProfile(), testJob())
	require.NoError(t, err)
	require.Len(t, set.Mappings, 1, "映射数量应与描述符字段一致")
	assert.Equal(t, "ok", set.Mappings[0].Value)
}

func TestMapFieldsFileFieldsSkipLLM(t *testing.T) {
	mock := &agent.MockChatModel{Response: `{"field_mappings": []}`}
	r := NewReasoner(mock, testOpts())

	desc := normalize(t, []types.RawFormField{
		{ID: "r", Question: "Upload Resume", Kind: "file", Required: true},
	})

	set, err := r.MapFields(context.Background(), desc, testProfile(), testJob())
	require.NoError(t, err)
	assert.Equal(t, 0, mock.CallCount)
	assert.Equal(t, types.ProvenanceUnresolved, set.Mappings[0].Provenance)
}

func TestMapFieldsNormalizesCheckboxValues(t *testing.T) {
	mock := &agent.MockChatModel{Response: `{
		"field_mappings": [{"semantic_name": "dropdown_field", "value": "Yes", "confidence": 0.8}]
	}`}
	r := NewReasoner(mock, testOpts())

	desc := normalize(t, []types.RawFormField{
		{ID: "t", Question: "I agree to be contacted", Kind: "checkbox"},
	})

	set, err := r.MapFields(context.Background(), desc, testProfile(), testJob())
	require.NoError(t, err)
	assert.Equal(t, "true", set.Mappings[0].Value)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(context.DeadlineExceeded))
	assert.True(t, isRetryableError(errors.New("dial tcp: connection refused")))
	assert.True(t, isRetryableError(errors.New("API 请求失败，状态 503 Service Unavailable: busy")))
	assert.False(t, isRetryableError(errors.New("API 请求失败，状态 400 Bad Request: schema")))
	assert.False(t, isRetryableError(nil))
}

func TestBuildMappingPromptIncludesOptionsAndCounts(t *testing.T) {
	fields := []types.FormField{
		{SemanticName: "address_country", Question: "Country", Kind: types.KindSelectLong,
			Options: []string{"Austria", "France", "Italy", "Spain", "United Kingdom"}, OptionCount: 30},
		{SemanticName: "dropdown_field", Question: "Remote?", Kind: types.KindSelectShort,
			Options: []string{"Yes", "No"}, Required: true},
	}

	prompt := BuildMappingPrompt(testProfile(), testJob(), fields, 1500)
	assert.Contains(t, prompt, "options (sample of 30)")
	assert.Contains(t, prompt, "Yes | No")
	assert.Contains(t, prompt, "first_name: Ada")
	assert.Contains(t, prompt, "Backend Engineer")
	assert.Contains(t, prompt, "required: true")
}

func TestBuildMappingPromptTruncatesJobDescription(t *testing.T) {
	job := testJob()
	long := make([]rune, 3000)
	for i := range long {
		long[i] = '字'
	}
	job.Description = string(long)

	prompt := BuildMappingPrompt(testProfile(), job, nil, 100)
	assert.NotContains(t, prompt, job.Description, "超长职位描述应被截断")
	assert.Contains(t, prompt, string([]rune(job.Description)[:100])+"…")
}
