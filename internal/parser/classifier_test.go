package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"apply-agent-go/internal/fielddict"
	"apply-agent-go/internal/types"
)

func TestClassifyLongestPhraseWins(t *testing.T) {
	// "first name" 同时含 "name" 和 "first name"，长短语应胜出
	name, conf := Classify("First Name", types.KindText)
	assert.Equal(t, "first_name", name)
	assert.InDelta(t, ConfidenceKeyword, conf, 1e-9)

	name, _ = Classify("Last Name", types.KindText)
	assert.Equal(t, "last_name", name)

	// "linkedin profile" 不应被 "website"/"portfolio" 抢走
	name, _ = Classify("LinkedIn Profile URL", types.KindText)
	assert.Equal(t, "linkedin_url", name)
}

func TestClassifyJobLocationPreferenceRule(t *testing.T) {
	for _, q := range []string{
		"Which location are you applying for?",
		"What location are you applying to?",
		"Preferred location for this role",
	} {
		name, conf := Classify(q, types.KindSelectShort)
		assert.Equal(t, "job_location_preference", name, "问题: %s", q)
		assert.InDelta(t, ConfidenceKeyword, conf, 1e-9)
	}

	// 纯位置问题仍归current_location
	name, _ := Classify("Current Location", types.KindText)
	assert.Equal(t, "current_location", name)
}

func TestClassifyFallsBackToKindCatchAll(t *testing.T) {
	cases := []struct {
		kind types.FieldKind
		want string
	}{
		{types.KindText, fielddict.CatchAllText},
		{types.KindTextarea, fielddict.CatchAllTextarea},
		{types.KindSelectShort, fielddict.CatchAllSelect},
		{types.KindSelectLong, fielddict.CatchAllSelect},
		{types.KindRadio, fielddict.CatchAllSelect},
		{types.KindFile, fielddict.CatchAllFile},
	}
	for _, c := range cases {
		name, conf := Classify("Zorblatt quotient", c.kind)
		assert.Equal(t, c.want, name)
		assert.InDelta(t, ConfidenceCatchAll, conf, 1e-9)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	// 同一输入多次分类必须得到同一结果
	questions := []string{"Email Address", "Phone Number", "Why do you want to work here?", "随便什么"}
	for _, q := range questions {
		n1, c1 := Classify(q, types.KindText)
		for i := 0; i < 5; i++ {
			n2, c2 := Classify(q, types.KindText)
			assert.Equal(t, n1, n2)
			assert.Equal(t, c1, c2)
		}
	}
}

func TestMatchOptionBidirectionalContains(t *testing.T) {
	opts := []string{"United Kingdom", "United States", "Germany"}

	assert.Equal(t, "United Kingdom", MatchOption("united kingdom", opts), "全等匹配忽略大小写")
	assert.Equal(t, "Germany", MatchOption("Germany (Berlin)", opts), "候选值包含选项文本")
	assert.Equal(t, "United States", MatchOption("States", opts), "选项文本包含候选值")
	assert.Empty(t, MatchOption("France", opts))
	assert.Empty(t, MatchOption("  ", opts))
}

func TestDeterministicMappingValidatesOptions(t *testing.T) {
	p := &types.Profile{
		PersonalInformation: types.PersonalInformation{
			Citizenship: types.Citizenship{Nationality: "British"},
		},
	}

	field := &types.FormField{
		OriginalID:   "nat",
		SemanticName: "nationality",
		Kind:         types.KindSelectShort,
		Options:      []string{"British", "French", "German"},
		Confidence:   1.0,
	}

	m := DeterministicMapping(field, p, types.ProvenanceDeterministic)
	assert.Equal(t, "British", m.Value)
	assert.Equal(t, types.ProvenanceDeterministic, m.Provenance)

	// 档案值不在选项中则unresolved，绝不编造选项
	field.Options = []string{"French", "German"}
	m = DeterministicMapping(field, p, types.ProvenanceDeterministic)
	assert.Equal(t, types.ProvenanceUnresolved, m.Provenance)
	assert.Empty(t, m.Value)
}

func TestDeterministicMappingUsesFullOptionSet(t *testing.T) {
	p := &types.Profile{
		PersonalInformation: types.PersonalInformation{
			Citizenship: types.Citizenship{Nationality: "Portuguese"},
		},
	}
	field := &types.FormField{
		OriginalID:   "nat",
		SemanticName: "nationality",
		Kind:         types.KindSelectLong,
		Options:      []string{"British", "French", "German", "Italian", "Spanish"}, // LLM样本
		AllOptions:   []string{"British", "French", "German", "Italian", "Spanish", "Portuguese"},
		Confidence:   1.0,
	}

	m := DeterministicMapping(field, p, types.ProvenanceDefault)
	assert.Equal(t, "Portuguese", m.Value, "样本之外、完整选项集之内的值应通过")
	assert.Equal(t, types.ProvenanceDefault, m.Provenance)
}

func TestDeterministicMappingFileFieldsHaveNoValue(t *testing.T) {
	p := &types.Profile{ResumeFileRef: "resumes/p-1.pdf"}
	field := &types.FormField{OriginalID: "r", SemanticName: "resume_file", Kind: types.KindFile}

	m := DeterministicMapping(field, p, types.ProvenanceDeterministic)
	assert.Empty(t, m.Value)
	assert.Equal(t, types.ProvenanceUnresolved, m.Provenance)
}
