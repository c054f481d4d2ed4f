package emitter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apply-agent-go/internal/agent"
	"apply-agent-go/internal/parser"
	"apply-agent-go/internal/reasoner"
	"apply-agent-go/internal/types"
)

func fixtureDescriptor(t *testing.T) (*types.FormDescriptor, types.IdentifierMap) {
	t.Helper()
	raw := &types.RawFormDescriptor{
		URL: "https://jobs.lever.co/acme/123/apply",
		Fields: []types.RawFormField{
			{ID: "name-input", Question: "Full Name ✱", Kind: "text", Required: true},
			{ID: "email-input", Question: "Email Address ✱", Kind: "email", Required: true},
			{ID: "country-select", Question: "Country", Kind: "select", Options: []string{"United Kingdom", "France", "Germany"}},
			{ID: "sponsor-select", Question: "Do you require visa sponsorship?", Kind: "select", Options: []string{"Yes", "No"}},
			{ID: "resume-upload", Question: "Upload Resume", Kind: "file", Required: true},
			{ID: "essay", Question: "Anything else you'd like to share?", Kind: "textarea"},
		},
	}
	desc, idMap, err := parser.NewNormalizer(10, 5).Normalize(raw)
	require.NoError(t, err)
	return desc, idMap
}

func fixtureMappings(desc *types.FormDescriptor) *types.MappingSet {
	return &types.MappingSet{
		Mappings: []types.FieldMapping{
			{SemanticName: "full_name", OriginalID: "name-input", Value: "Ada Lovelace", Provenance: types.ProvenanceDeterministic, Confidence: 1},
			{SemanticName: "email", OriginalID: "email-input", Value: "ada@example.com", Provenance: types.ProvenanceDeterministic, Confidence: 1},
			{SemanticName: "address_country", OriginalID: "country-select", Value: "United Kingdom", Provenance: types.ProvenanceDeterministic, Confidence: 1},
			{SemanticName: "visa_sponsorship", OriginalID: "sponsor-select", Value: "No", Provenance: types.ProvenanceLLM, Confidence: 0.9},
			{SemanticName: "resume_file", OriginalID: "resume-upload", Provenance: types.ProvenanceUnresolved},
			{SemanticName: "additional_info", OriginalID: "essay", Provenance: types.ProvenanceUnresolved},
		},
		NeedsUserInput: []string{"resume_file"},
	}
}

func TestEmitManifestMatchesPayload(t *testing.T) {
	desc, idMap := fixtureDescriptor(t)
	inst, err := NewEmitter(false, 0).Emit(desc, idMap, fixtureMappings(desc))
	require.NoError(t, err)

	require.Len(t, inst.Manifest, 4, "清单只含实际写值的字段")
	for _, entry := range inst.Manifest {
		assert.Contains(t, inst.Payload, entry.Value, "清单值 %s 必须出现在脚本中", entry.SemanticName)
	}

	// 未解析的文本字段不进脚本
	assert.NotContains(t, inst.Payload, `"essay"`)
	// 文件字段只高亮
	assert.Contains(t, inst.Payload, `"resume-upload"`)
	assert.Contains(t, inst.Payload, `"highlight"`)
}

func TestEmitReproducibleOutput(t *testing.T) {
	desc, idMap := fixtureDescriptor(t)
	set := fixtureMappings(desc)

	e := NewEmitter(true, 0)
	a, err := e.Emit(desc, idMap, set)
	require.NoError(t, err)
	b, err := e.Emit(desc, idMap, set)
	require.NoError(t, err)

	assert.Equal(t, a.Payload, b.Payload, "同一输入必须生成字节级一致的脚本")
	assert.Equal(t, a.Manifest, b.Manifest)
}

func TestEmitPayloadHasNoDestructiveOps(t *testing.T) {
	desc, idMap := fixtureDescriptor(t)
	inst, err := NewEmitter(true, 0).Emit(desc, idMap, fixtureMappings(desc))
	require.NoError(t, err)

	for _, forbidden := range []string{
		".submit(", "fetch(", "XMLHttpRequest", "window.location", "navigate", "sendBeacon", "WebSocket",
	} {
		assert.NotContains(t, inst.Payload, forbidden, "脚本不得包含 %s", forbidden)
	}
	// 已填控件一律跳过，保证重复执行无破坏
	assert.Contains(t, inst.Payload, "result.skipped.push")
	assert.Contains(t, inst.Payload, "dispatchEvent(new Event(type, { bubbles: true }))")
}

func TestEmitOverlayToggle(t *testing.T) {
	desc, idMap := fixtureDescriptor(t)
	set := fixtureMappings(desc)

	with, err := NewEmitter(true, 0).Emit(desc, idMap, set)
	require.NoError(t, err)
	without, err := NewEmitter(false, 0).Emit(desc, idMap, set)
	require.NoError(t, err)

	assert.Contains(t, with.Payload, "apply-agent-overlay")
	assert.NotContains(t, without.Payload, "apply-agent-overlay")
}

func TestEmitHighlightAndVisibility(t *testing.T) {
	desc, idMap := fixtureDescriptor(t)
	set := fixtureMappings(desc)

	inst, err := NewEmitter(false, 2000).Emit(desc, idMap, set)
	require.NoError(t, err)

	assert.Contains(t, inst.Payload, "var HIGHLIGHT_MS = 2000;")
	assert.Contains(t, inst.Payload, "function flash(el)", "每次成功写值后给控件短暂描边")
	assert.Contains(t, inst.Payload, "function isVisible(el)", "定位时跳过不可见控件")
	assert.Contains(t, inst.Payload, "flash(el);")

	// 不传时长时落到默认值
	inst, err = NewEmitter(false, 0).Emit(desc, idMap, set)
	require.NoError(t, err)
	assert.Contains(t, inst.Payload, "var HIGHLIGHT_MS = 1500;")
}

func TestEmitUnknownSemanticNameFails(t *testing.T) {
	desc, idMap := fixtureDescriptor(t)
	set := &types.MappingSet{Mappings: []types.FieldMapping{
		{SemanticName: "ghost_field", OriginalID: "x", Value: "v", Provenance: types.ProvenanceLLM},
	}}

	_, err := NewEmitter(false, 0).Emit(desc, idMap, set)
	assert.Error(t, err)
}

// 端到端：规范化 -> 推理（mock LLM）-> 生成脚本
func TestPipelineNormalizeToInstrument(t *testing.T) {
	profile := &types.Profile{
		ProfileID: "p-1",
		PersonalInformation: types.PersonalInformation{
			BasicInformation:   types.BasicInformation{FirstName: "Ada", LastName: "Lovelace"},
			ContactInformation: types.ContactInformation{Email: "ada@example.com"},
			Address:            types.Address{Country: "United Kingdom"},
			Citizenship:        types.Citizenship{RequiresSponsorship: "No"},
		},
	}
	job := &types.Job{JobID: "j-1", Title: "Backend Engineer", Company: "Acme"}

	desc, idMap := fixtureDescriptor(t)
	mock := &agent.MockChatModel{Response: `{
		"field_mappings": [{"semantic_name": "text_area", "value": "", "confidence": 0.2}]
	}`}
	r := reasoner.NewReasoner(mock, reasoner.Options{MaxRetries: 1, RetryWait: time.Millisecond, CallTimeout: time.Second, JobSummaryCap: 1500})

	set, err := r.MapFields(context.Background(), desc, profile, job)
	require.NoError(t, err)

	inst, err := NewEmitter(true, 0).Emit(desc, idMap, set)
	require.NoError(t, err)

	assert.Contains(t, inst.Payload, "Ada Lovelace")
	assert.Contains(t, inst.Payload, "ada@example.com")
	assert.Contains(t, inst.Payload, "United Kingdom")

	names := make([]string, 0, len(inst.Manifest))
	for _, m := range inst.Manifest {
		names = append(names, m.SemanticName)
	}
	assert.Contains(t, names, "full_name")
	assert.Contains(t, names, "email")
	assert.False(t, strings.Contains(inst.Payload, ".submit("))
}
