package reasoner

import (
	"fmt"
	"strings"

	"apply-agent-go/internal/types"
)

// 提示词模板。要求模型只输出JSON，便于宽容解析；
// 明确禁止编造选项之外的值，给不出答案时输出空串
const systemPrompt = `You are a precise assistant that fills job application forms on behalf of a candidate.
You are given the candidate's profile, a short summary of the job, and a list of form fields.
For every field, decide the value to fill based ONLY on the candidate profile.

Rules:
- Output ONLY a JSON object, no explanations, no markdown fences.
- The JSON shape is: {"field_mappings": [{"semantic_name": "...", "value": "...", "confidence": 0.0, "reasoning": "..."}]}
- For choice fields, the value MUST be one of the listed options, copied verbatim.
- For choice fields showing only a sample of options, you may answer with a value you expect to exist in the full list.
- If the profile has no information for a field, use an empty string as the value.
- Never invent facts about the candidate.`

// BuildMappingPrompt 组装一次字段推理调用的用户提示词
func BuildMappingPrompt(profile *types.Profile, job *types.Job, fields []types.FormField, jobSummaryCap int) string {
	var b strings.Builder

	b.WriteString("## Candidate profile\n")
	for _, kv := range profile.FlatSummary() {
		fmt.Fprintf(&b, "%s: %s\n", kv.Key, kv.Value)
	}

	if job != nil {
		b.WriteString("\n## Job\n")
		fmt.Fprintf(&b, "title: %s\n", job.Title)
		fmt.Fprintf(&b, "company: %s\n", job.Company)
		if job.Location != "" {
			fmt.Fprintf(&b, "location: %s\n", job.Location)
		}
		if desc := capRunes(job.Description, jobSummaryCap); desc != "" {
			fmt.Fprintf(&b, "description: %s\n", desc)
		}
	}

	b.WriteString("\n## Form fields\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "- semantic_name: %s\n  question: %s\n  kind: %s\n", f.SemanticName, f.Question, f.Kind)
		if f.Required {
			b.WriteString("  required: true\n")
		}
		switch f.Kind {
		case types.KindSelectShort, types.KindRadio, types.KindCheckbox:
			fmt.Fprintf(&b, "  options: %s\n", strings.Join(f.Options, " | "))
		case types.KindSelectLong:
			fmt.Fprintf(&b, "  options (sample of %d): %s\n", f.OptionCount, strings.Join(f.Options, " | "))
		}
	}

	b.WriteString("\nReturn the JSON object now.")
	return b.String()
}

// capRunes 按字符数截断职位描述，避免撑爆小模型的上下文窗口
func capRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
