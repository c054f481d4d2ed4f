package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"apply-agent-go/internal/types"
)

// ErrInvalidDescriptor 原始表单描述不可用（为空或字段缺标识符）
var ErrInvalidDescriptor = errors.New("无效的表单描述")

// Normalizer 表单描述规范化器：清洗问题文本、归一控件类型、
// 赋予语义名并保证描述符内唯一
type Normalizer struct {
	shortOptionMax int // 选项数超过该值的下拉归为select_long
	optionSampleN  int // select_long发给LLM的选项样本数
}

// NewNormalizer 创建规范化器。参数<=0时取缺省值（10与5）
func NewNormalizer(shortOptionMax, optionSampleN int) *Normalizer {
	if shortOptionMax <= 0 {
		shortOptionMax = 10
	}
	if optionSampleN <= 0 {
		optionSampleN = 5
	}
	return &Normalizer{shortOptionMax: shortOptionMax, optionSampleN: optionSampleN}
}

// Normalize 把扩展端上报的原始描述转成规范化描述和标识符映射。
// 标识符映射对产出的所有语义名是全映射。
func (n *Normalizer) Normalize(raw *types.RawFormDescriptor) (*types.FormDescriptor, types.IdentifierMap, error) {
	if raw == nil || len(raw.Fields) == 0 {
		return nil, nil, fmt.Errorf("%w: 无字段", ErrInvalidDescriptor)
	}

	desc := &types.FormDescriptor{URL: raw.URL, Fields: make([]types.FormField, 0, len(raw.Fields))}
	idMap := make(types.IdentifierMap, len(raw.Fields))
	nameCount := make(map[string]int, len(raw.Fields))

	for i, rf := range raw.Fields {
		if strings.TrimSpace(rf.ID) == "" {
			return nil, nil, fmt.Errorf("%w: 第%d个字段缺少标识符", ErrInvalidDescriptor, i)
		}

		question := CleanQuestion(rf.Question)
		kind := n.normalizeKind(rf)
		name, conf := Classify(question, kind)

		// 同名字段加数字后缀消歧：email, email_2, email_3 ...
		nameCount[name]++
		if c := nameCount[name]; c > 1 {
			name = fmt.Sprintf("%s_%d", name, c)
		}

		f := types.FormField{
			OriginalID:   rf.ID,
			SemanticName: name,
			Question:     question,
			Kind:         kind,
			Required:     rf.Required,
			Confidence:   conf,
			OptionCount:  len(rf.Options),
		}

		switch kind {
		case types.KindSelectShort, types.KindRadio, types.KindCheckbox:
			f.Options = append([]string(nil), rf.Options...)
		case types.KindSelectLong:
			// 完整选项集只留在服务端做校验，LLM只看到样本
			f.AllOptions = append([]string(nil), rf.Options...)
			f.Options = sampleOptions(rf.Options, n.optionSampleN)
		}

		desc.Fields = append(desc.Fields, f)
		idMap[name] = rf.ID
	}

	return desc, idMap, nil
}

// normalizeKind 原始控件类型归一。带选项的select按选项数分短长
func (n *Normalizer) normalizeKind(rf types.RawFormField) types.FieldKind {
	switch strings.ToLower(strings.TrimSpace(rf.Kind)) {
	case "email":
		return types.KindEmail
	case "tel", "phone":
		return types.KindTel
	case "textarea":
		return types.KindTextarea
	case "select", "select-one", "dropdown":
		if len(rf.Options) > n.shortOptionMax {
			return types.KindSelectLong
		}
		return types.KindSelectShort
	case "radio":
		return types.KindRadio
	case "checkbox":
		return types.KindCheckbox
	case "file":
		return types.KindFile
	default:
		return types.KindText
	}
}

// CleanQuestion 清洗问题文本：去掉必填标记（✱、*、(required)等装饰）并折叠空白
func CleanQuestion(q string) string {
	q = strings.NewReplacer("✱", " ", "*", " ", "（必填）", " ").Replace(q)
	lower := strings.ToLower(q)
	for _, marker := range []string{"(required)", "(optional)", "required field"} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			q = q[:idx] + q[idx+len(marker):]
			lower = strings.ToLower(q)
		}
	}
	return strings.Join(strings.Fields(q), " ")
}

// sampleOptions 取完整选项集的前n个作为样本。服务端校验用的是完整选项集，
// 样本只用来让LLM感知选项的形状
func sampleOptions(options []string, n int) []string {
	if len(options) <= n {
		return append([]string(nil), options...)
	}
	return append([]string(nil), options[:n]...)
}

// DescriptorHash 规范化描述的内容指纹，作映射缓存键的一部分
func DescriptorHash(desc *types.FormDescriptor) string {
	h := sha256.New()
	for _, f := range desc.Fields {
		h.Write([]byte(f.SemanticName))
		h.Write([]byte{0})
		h.Write([]byte(f.Kind))
		h.Write([]byte{0})
		h.Write([]byte(f.OriginalID))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
