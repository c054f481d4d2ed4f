package emitter // 注入脚本生成器：把字段映射编译成在浏览器端执行的自包含填表脚本

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"apply-agent-go/internal/fielddict"
	"apply-agent-go/internal/types"
)

// 脚本动作
const (
	actionFill      = "fill"      // 文本类控件直接赋值
	actionSelect    = "select"    // 下拉按选项文本匹配
	actionCheck     = "check"     // 单选/复选
	actionHighlight = "highlight" // 文件字段只高亮提示，人工上传
)

// scriptField 注入脚本内嵌的单字段指令
type scriptField struct {
	ID        string   `json:"id"`
	Semantic  string   `json:"semantic"`
	Action    string   `json:"action"`
	Value     string   `json:"value,omitempty"`
	Selectors []string `json:"selectors,omitempty"`
}

// Emitter 把映射集编译成注入脚本。输出对同一输入完全可复现
type Emitter struct {
	overlayUI       bool
	highlightMillis int
}

// NewEmitter overlayUI控制是否在页面上叠加填写进度浮层，
// highlightMillis是填写后高亮提示的时长，<=0时取1500毫秒
func NewEmitter(overlayUI bool, highlightMillis int) *Emitter {
	if highlightMillis <= 0 {
		highlightMillis = 1500
	}
	return &Emitter{overlayUI: overlayUI, highlightMillis: highlightMillis}
}

// Emit 生成注入脚本和清单。脚本只读写表单控件：
// 不提交、不跳转、不发任何网络请求，也绝不携带凭据。
// 已有内容的控件一律跳过，重复执行不会破坏用户手填的值
func (e *Emitter) Emit(desc *types.FormDescriptor, idMap types.IdentifierMap, set *types.MappingSet) (*types.Instrument, error) {
	if desc == nil || set == nil {
		return nil, fmt.Errorf("生成注入脚本需要表单描述和映射集")
	}

	fields := make([]scriptField, 0, len(set.Mappings))
	manifest := make([]types.ManifestEntry, 0, len(set.Mappings))

	for _, m := range set.Mappings {
		f := desc.FieldByName(m.SemanticName)
		if f == nil {
			return nil, fmt.Errorf("映射引用了描述符之外的语义名: %s", m.SemanticName)
		}
		id, ok := idMap[m.SemanticName]
		if !ok {
			return nil, fmt.Errorf("语义名 %s 缺少原始标识符", m.SemanticName)
		}

		// 文件字段无论映射结果如何只做高亮
		if f.Kind == types.KindFile {
			fields = append(fields, scriptField{
				ID:        id,
				Semantic:  m.SemanticName,
				Action:    actionHighlight,
				Selectors: fielddict.Lookup(m.SemanticName).Selectors,
			})
			continue
		}

		// 未解析的字段不进脚本，留给用户手填
		if m.Provenance == types.ProvenanceUnresolved || m.Value == "" {
			continue
		}

		sf := scriptField{
			ID:        id,
			Semantic:  m.SemanticName,
			Value:     m.Value,
			Selectors: fielddict.Lookup(m.SemanticName).Selectors,
		}
		switch f.Kind {
		case types.KindSelectShort, types.KindSelectLong:
			sf.Action = actionSelect
		case types.KindRadio, types.KindCheckbox:
			sf.Action = actionCheck
		default:
			sf.Action = actionFill
		}

		fields = append(fields, sf)
		manifest = append(manifest, types.ManifestEntry{SemanticName: m.SemanticName, Value: m.Value})
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("序列化脚本字段失败: %w", err)
	}

	var payload strings.Builder
	data := scriptData{FieldsJSON: string(fieldsJSON), Overlay: e.overlayUI, HighlightMillis: e.highlightMillis}
	if err := fillScriptTmpl.Execute(&payload, data); err != nil {
		return nil, fmt.Errorf("渲染注入脚本失败: %w", err)
	}

	return &types.Instrument{Payload: payload.String(), Manifest: manifest}, nil
}

type scriptData struct {
	FieldsJSON      string
	Overlay         bool
	HighlightMillis int
}

// 注入脚本模板。脚本自包含，不引用页面之外的任何资源
var fillScriptTmpl = template.Must(template.New("fill").Parse(`(function () {
  'use strict';
  var FIELDS = {{.FieldsJSON}};
  var HIGHLIGHT_MS = {{.HighlightMillis}};
  var result = { filled: [], skipped: [], highlighted: [], missing: [] };

  function cssEscape(s) {
    if (window.CSS && CSS.escape) { return CSS.escape(s); }
    return String(s).replace(/([^a-zA-Z0-9_-])/g, '\\$1');
  }

  function isVisible(el) {
    return el.offsetParent !== null || el.getClientRects().length > 0;
  }

  function findElement(field) {
    var sels = [
      '#' + cssEscape(field.id),
      '[name="' + field.id + '"]',
      '[id="' + field.id + '"]',
      '[data-qa="' + field.id + '"]'
    ].concat(field.selectors || []);
    for (var i = 0; i < sels.length; i++) {
      try {
        var el = document.querySelector(sels[i]);
        if (el && isVisible(el)) { return el; }
      } catch (e) { /* 无效选择器直接尝试下一个 */ }
    }
    return null;
  }

  function fireEvents(el) {
    ['input', 'change'].forEach(function (type) {
      el.dispatchEvent(new Event(type, { bubbles: true }));
    });
  }

  function flash(el) {
    var prev = el.style.boxShadow;
    el.style.boxShadow = '0 0 0 3px rgba(66, 153, 225, 0.6)';
    el.style.transition = 'box-shadow .2s';
    setTimeout(function () { el.style.boxShadow = prev; }, HIGHLIGHT_MS);
  }

  function norm(s) { return String(s || '').trim().toLowerCase(); }

  function fillText(el, field) {
    if (el.value && el.value.trim() !== '') {
      result.skipped.push(field.semantic);
      return;
    }
    el.focus();
    el.value = field.value;
    fireEvents(el);
    flash(el);
    result.filled.push(field.semantic);
  }

  function fillSelect(el, field) {
    if (el.selectedIndex > 0 && norm(el.value) !== '') {
      result.skipped.push(field.semantic);
      return;
    }
    var want = norm(field.value);
    var idx = -1;
    for (var i = 0; i < el.options.length; i++) {
      var text = norm(el.options[i].text);
      var val = norm(el.options[i].value);
      if (text === want || val === want) { idx = i; break; }
      if (idx < 0 && text && (text.indexOf(want) !== -1 || want.indexOf(text) !== -1)) { idx = i; }
    }
    if (idx < 0) {
      result.missing.push(field.semantic);
      return;
    }
    el.selectedIndex = idx;
    fireEvents(el);
    flash(el);
    result.filled.push(field.semantic);
  }

  function fillCheck(el, field) {
    var want = norm(field.value);
    if (el.type === 'checkbox') {
      var target = (want === 'true' || want === 'yes' || want === '1');
      if (el.checked === target) { result.skipped.push(field.semantic); return; }
      el.checked = target;
      fireEvents(el);
      flash(el);
      result.filled.push(field.semantic);
      return;
    }
    // 单选按组名收集，按选项值或相邻文本匹配
    var group = document.querySelectorAll('input[type="radio"][name="' + el.name + '"]');
    for (var i = 0; i < group.length; i++) {
      var r = group[i];
      var label = r.closest ? r.closest('label') : null;
      var text = norm(r.value) || (label ? norm(label.textContent) : '');
      if (text === want || (text && (text.indexOf(want) !== -1 || want.indexOf(text) !== -1))) {
        if (r.checked) { result.skipped.push(field.semantic); return; }
        r.checked = true;
        fireEvents(r);
        flash(r);
        result.filled.push(field.semantic);
        return;
      }
    }
    result.missing.push(field.semantic);
  }

  function highlight(el, field) {
    el.style.outline = '3px solid #f5a623';
    el.style.outlineOffset = '2px';
    result.highlighted.push(field.semantic);
  }

  FIELDS.forEach(function (field) {
    var el = findElement(field);
    if (!el) {
      result.missing.push(field.semantic);
      return;
    }
    switch (field.action) {
      case 'fill': fillText(el, field); break;
      case 'select': fillSelect(el, field); break;
      case 'check': fillCheck(el, field); break;
      case 'highlight': highlight(el, field); break;
    }
  });
{{if .Overlay}}
  (function showOverlay() {
    var old = document.getElementById('apply-agent-overlay');
    if (old && old.parentNode) { old.parentNode.removeChild(old); }
    var box = document.createElement('div');
    box.id = 'apply-agent-overlay';
    box.style.cssText = 'position:fixed;bottom:16px;right:16px;z-index:2147483647;' +
      'background:#1d2733;color:#fff;padding:12px 16px;border-radius:8px;' +
      'font:13px/1.5 sans-serif;box-shadow:0 4px 14px rgba(0,0,0,.35);max-width:320px;';
    box.textContent = '已填写 ' + result.filled.length +
      ' 项，跳过 ' + result.skipped.length +
      ' 项，待人工处理 ' + (result.missing.length + result.highlighted.length) +
      ' 项。请核对后自行提交。';
    var close = document.createElement('span');
    close.textContent = ' ✕';
    close.style.cssText = 'cursor:pointer;margin-left:8px;opacity:.7;';
    close.onclick = function () { box.parentNode.removeChild(box); };
    box.appendChild(close);
    document.body.appendChild(box);
  })();
{{end}}
  return result;
})();`))
