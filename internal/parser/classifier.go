package parser

import (
	"sort"
	"strings"

	"apply-agent-go/internal/fielddict"
	"apply-agent-go/internal/types"
)

// 语义分类置信度：关键词命中为1.0，落入兜底项为0.4
const (
	ConfidenceKeyword  = 1.0
	ConfidenceCatchAll = 0.4
)

// keywordRule 展开后的单条关键词规则
type keywordRule struct {
	phrase string
	name   string
}

// keywordRules 词典关键词展开为有序规则表：长短语在前，
// 保证 "first name" 先于 "name" 命中
var keywordRules = func() []keywordRule {
	var rules []keywordRule
	for _, e := range fielddict.All() {
		for _, kw := range e.Keywords {
			rules = append(rules, keywordRule{phrase: kw, name: e.Name})
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].phrase) > len(rules[j].phrase)
	})
	return rules
}()

// Classify 对清洗后的问题文本做确定性语义分类。
// 同一输入永远产生同一输出，不依赖任何外部状态。
func Classify(question string, kind types.FieldKind) (string, float64) {
	q := normalizeQuestion(question)

	// 专门规则：位置+申请意向的组合问题归入求职地点偏好，
	// 避免被更短的 "location" 关键词抢走
	if strings.Contains(q, "location") &&
		(strings.Contains(q, "applying") || strings.Contains(q, "apply for") || strings.Contains(q, "this role") || strings.Contains(q, "this position")) {
		return "job_location_preference", ConfidenceKeyword
	}

	for _, r := range keywordRules {
		if strings.Contains(q, r.phrase) {
			return r.name, ConfidenceKeyword
		}
	}

	return catchAllFor(kind), ConfidenceCatchAll
}

// catchAllFor 按控件类型选择兜底语义名
func catchAllFor(kind types.FieldKind) string {
	switch kind {
	case types.KindTextarea:
		return fielddict.CatchAllTextarea
	case types.KindSelectShort, types.KindSelectLong, types.KindRadio, types.KindCheckbox:
		return fielddict.CatchAllSelect
	case types.KindFile:
		return fielddict.CatchAllFile
	default:
		return fielddict.CatchAllText
	}
}

// normalizeQuestion 小写化并折叠空白，供关键词匹配
func normalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// DeterministicMapping 不经LLM、仅凭词典取值生成单个字段的填写决定。
// prov区分直接确定性取值与LLM失败后的回退
func DeterministicMapping(field *types.FormField, profile *types.Profile, prov types.Provenance) types.FieldMapping {
	m := types.FieldMapping{
		SemanticName: field.SemanticName,
		OriginalID:   field.OriginalID,
		Confidence:   field.Confidence,
		Provenance:   prov,
	}

	value := fielddict.ResolveValue(field.SemanticName, profile)
	if value == "" {
		m.Provenance = types.ProvenanceUnresolved
		m.Confidence = 0
		return m
	}

	// 选择类字段必须落在真实选项上，按包含关系双向匹配选项文本
	switch field.Kind {
	case types.KindSelectShort, types.KindSelectLong, types.KindRadio:
		opts := field.Options
		if len(field.AllOptions) > 0 {
			opts = field.AllOptions
		}
		matched := MatchOption(value, opts)
		if matched == "" {
			m.Provenance = types.ProvenanceUnresolved
			m.Confidence = 0
			return m
		}
		value = matched
	case types.KindFile:
		// 文件字段不由脚本填值，只做高亮提示
		m.Provenance = types.ProvenanceUnresolved
		m.Confidence = 0
		return m
	}

	m.Value = value
	return m
}

// MatchOption 在选项集中找与候选值匹配的选项原文。
// 忽略大小写，先找全等，再按包含关系双向匹配；无匹配返回空串
func MatchOption(value string, options []string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return ""
	}
	for _, opt := range options {
		if strings.ToLower(strings.TrimSpace(opt)) == v {
			return opt
		}
	}
	for _, opt := range options {
		o := strings.ToLower(strings.TrimSpace(opt))
		if o == "" {
			continue
		}
		if strings.Contains(o, v) || strings.Contains(v, o) {
			return opt
		}
	}
	return ""
}
