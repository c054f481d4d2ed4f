package types

// RawFormField 浏览器扩展上报的原始表单字段，标识符不稳定、问题文本未清洗
type RawFormField struct {
	ID       string   `json:"id"`       // 页面内的不透明标识符
	Question string   `json:"question"` // 原始问题文本，可能带必填标记
	Kind     string   `json:"kind"`     // 原始控件类型: text/email/tel/textarea/select/radio/checkbox/file
	Options  []string `json:"options"`  // 下拉/单选的选项，可为空
	Required bool     `json:"required"`
}

// RawFormDescriptor 扩展端抓取的整张表单描述
type RawFormDescriptor struct {
	URL    string         `json:"url,omitempty"`
	Fields []RawFormField `json:"fields"`
}

// FieldKind 规范化后的字段类型
type FieldKind string

const (
	KindText        FieldKind = "text"
	KindEmail       FieldKind = "email"
	KindTel         FieldKind = "tel"
	KindTextarea    FieldKind = "textarea"
	KindSelectShort FieldKind = "select_short" // 选项数 <= 10，全部保留
	KindSelectLong  FieldKind = "select_long"  // 选项数 > 10，只给LLM看样本
	KindRadio       FieldKind = "radio"
	KindCheckbox    FieldKind = "checkbox"
	KindFile        FieldKind = "file"
)

// FormField 规范化后的表单字段。SemanticName取自字段词典词表，
// 同一描述符内通过数字后缀消歧保证唯一。
type FormField struct {
	OriginalID   string    `json:"original_id"`
	SemanticName string    `json:"semantic_name"`
	Question     string    `json:"question"` // 清洗后的问题文本
	Kind         FieldKind `json:"kind"`
	Options      []string  `json:"options"`      // select_short保留全部；select_long此处为发给LLM的样本
	AllOptions   []string  `json:"-"`            // select_long的完整选项集，仅服务端校验用，不出网
	OptionCount  int       `json:"option_count"` // 原始选项总数
	Required     bool      `json:"required"`
	Confidence   float64   `json:"confidence"` // 语义分类置信度
}

// FormDescriptor 一张表单的规范化描述
type FormDescriptor struct {
	URL    string      `json:"url,omitempty"`
	Fields []FormField `json:"fields"`
}

// IdentifierMap 语义名到原始标识符的映射，对描述符内所有语义名是全映射
type IdentifierMap map[string]string

// FieldByName 按语义名查找字段，找不到返回nil
func (d *FormDescriptor) FieldByName(name string) *FormField {
	for i := range d.Fields {
		if d.Fields[i].SemanticName == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// Provenance 字段值的来源
type Provenance string

const (
	ProvenanceDeterministic Provenance = "deterministic" // 关键词分类直接从档案取值
	ProvenanceLLM           Provenance = "llm"           // LLM推理得出并通过校验
	ProvenanceDefault       Provenance = "default"       // LLM失败后回退到确定性取值
	ProvenanceUnresolved    Provenance = "unresolved"    // 无法解析，注入脚本留空
)

// FieldMapping 单个字段的填写决定。值统一为字符串，数值和布尔来源也转为字符串
type FieldMapping struct {
	SemanticName string     `json:"semantic_name"`
	OriginalID   string     `json:"original_id"`
	Value        string     `json:"value"`
	Confidence   float64    `json:"confidence"`
	Provenance   Provenance `json:"provenance"`
	Reasoning    string     `json:"reasoning,omitempty"`
}

// MappingSet analyze产出的完整映射，附带需要人工补充的必填字段列表
type MappingSet struct {
	Mappings       []FieldMapping `json:"field_mappings"`
	NeedsUserInput []string       `json:"needs_user_input,omitempty"` // 必填但unresolved的语义名
}

// ManifestEntry 注入脚本清单中的一项
type ManifestEntry struct {
	SemanticName string `json:"semantic_name"`
	Value        string `json:"value"`
}

// Instrument 注入浏览器执行的自包含脚本及其清单。
// 清单与脚本内容一致；脚本绝不携带凭据
type Instrument struct {
	Payload  string          `json:"payload"`
	Manifest []ManifestEntry `json:"manifest"`
}
