package parser

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apply-agent-go/internal/types"
)

func TestNormalizeEmptyDescriptor(t *testing.T) {
	n := NewNormalizer(0, 0)

	_, _, err := n.Normalize(nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, _, err = n.Normalize(&types.RawFormDescriptor{})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, _, err = n.Normalize(&types.RawFormDescriptor{
		Fields: []types.RawFormField{{ID: "  ", Question: "Email"}},
	})
	assert.ErrorIs(t, err, ErrInvalidDescriptor, "缺标识符的字段应整体拒绝")
}

func TestNormalizeCleansQuestionsAndAssignsNames(t *testing.T) {
	n := NewNormalizer(0, 0)

	raw := &types.RawFormDescriptor{
		URL: "https://jobs.lever.co/acme/123/apply",
		Fields: []types.RawFormField{
			{ID: "f1", Question: "  Email Address ✱ ", Kind: "email", Required: true},
			{ID: "f2", Question: "First  Name *", Kind: "text"},
			{ID: "f3", Question: "Phone (required)", Kind: "tel"},
		},
	}

	desc, idMap, err := n.Normalize(raw)
	require.NoError(t, err)
	require.Len(t, desc.Fields, 3)

	assert.Equal(t, "Email Address", desc.Fields[0].Question, "必填标记应被清洗")
	assert.Equal(t, "email", desc.Fields[0].SemanticName)
	assert.Equal(t, types.KindEmail, desc.Fields[0].Kind)
	assert.True(t, desc.Fields[0].Required)
	assert.InDelta(t, ConfidenceKeyword, desc.Fields[0].Confidence, 1e-9)

	assert.Equal(t, "First Name", desc.Fields[1].Question)
	assert.Equal(t, "first_name", desc.Fields[1].SemanticName)

	assert.Equal(t, "Phone", desc.Fields[2].Question)
	assert.Equal(t, "phone", desc.Fields[2].SemanticName)
	assert.Equal(t, types.KindTel, desc.Fields[2].Kind)

	// 标识符映射对全部语义名是全映射
	for _, f := range desc.Fields {
		assert.Equal(t, f.OriginalID, idMap[f.SemanticName], "语义名 %s 应映射回原始标识符", f.SemanticName)
	}
}

func TestNormalizeDisambiguatesDuplicateNames(t *testing.T) {
	n := NewNormalizer(0, 0)

	raw := &types.RawFormDescriptor{
		Fields: []types.RawFormField{
			{ID: "a", Question: "Email", Kind: "email"},
			{ID: "b", Question: "Email Address", Kind: "email"},
			{ID: "c", Question: "E-mail", Kind: "text"},
		},
	}

	desc, idMap, err := n.Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "email", desc.Fields[0].SemanticName)
	assert.Equal(t, "email_2", desc.Fields[1].SemanticName)
	assert.Equal(t, "email_3", desc.Fields[2].SemanticName)

	assert.Equal(t, "a", idMap["email"])
	assert.Equal(t, "b", idMap["email_2"])
	assert.Equal(t, "c", idMap["email_3"])
}

func TestNormalizeSplitsSelectsByOptionCount(t *testing.T) {
	n := NewNormalizer(10, 5)

	short := make([]string, 10)
	long := make([]string, 60)
	for i := range short {
		short[i] = fmt.Sprintf("S%02d", i)
	}
	for i := range long {
		long[i] = fmt.Sprintf("L%02d", i)
	}

	raw := &types.RawFormDescriptor{
		Fields: []types.RawFormField{
			{ID: "s", Question: "State", Kind: "select", Options: short},
			{ID: "c", Question: "Country", Kind: "select", Options: long},
		},
	}

	desc, _, err := n.Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, types.KindSelectShort, desc.Fields[0].Kind)
	assert.Len(t, desc.Fields[0].Options, 10, "短下拉应保留全部选项")
	assert.Empty(t, desc.Fields[0].AllOptions)

	lf := desc.Fields[1]
	assert.Equal(t, types.KindSelectLong, lf.Kind)
	assert.Len(t, lf.Options, 5, "长下拉只给LLM看5个样本")
	assert.Len(t, lf.AllOptions, 60, "完整选项集留在服务端")
	assert.Equal(t, 60, lf.OptionCount)
	assert.Equal(t, []string{"L00", "L01", "L02", "L03", "L04"}, lf.Options,
		"样本取完整选项集的前5个")
}

func TestDescriptorHashStability(t *testing.T) {
	n := NewNormalizer(0, 0)
	raw := &types.RawFormDescriptor{
		Fields: []types.RawFormField{
			{ID: "a", Question: "Email", Kind: "email"},
			{ID: "b", Question: "First Name", Kind: "text"},
		},
	}

	d1, _, err := n.Normalize(raw)
	require.NoError(t, err)
	d2, _, err := n.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, DescriptorHash(d1), DescriptorHash(d2), "同一输入应得同一指纹")

	raw.Fields[1].ID = "changed"
	d3, _, err := n.Normalize(raw)
	require.NoError(t, err)
	assert.NotEqual(t, DescriptorHash(d1), DescriptorHash(d3))
}
