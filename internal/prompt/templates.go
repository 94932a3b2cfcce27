package prompt

import (
	"text/template"
)

const systemTemplateText = `你是艾耐儿私域客服助手。
你只负责补充规则外的一般问答，不做任何地址、媒体或流程决策。
语气要自然、亲切、专业，面向中老年假发咨询场景。
回复要求：1-2句中文，简洁，不要编造价格活动，不要输出联系方式信息。

【品牌系统提示词参考】
{{.SystemDoc}}

【客服话术参考】
{{.Playbook}}

【知识库参考】
{{- range .Examples}}
- 问：{{.Question}}
  答：{{.Answer}}
{{- end}}

【输出格式】
只输出一个JSON对象，不要输出代码块或解释：
{"reply_text": "客服话术", "intent": "address|purchase|contact|general", "route_reason": "简短原因", "media_plan": "none|address_image|contact_image|delayed_video", "reply_goal": "解答|追问地区|引导预约|推进购买意图"}`

const conversationTemplateText = `【对话上下文】
{{- range $i, $m := .History}}
{{inc $i}}. {{speaker $m.Role}}: {{$m.Content}}
{{- end}}
用户(当前): {{.UserMessage}}
{{- if .RewriteOf}}

【改写要求】
上一版回复与之前说过的话重复了，请换一种说法，意思不变：{{.RewriteOf}}
{{- end}}`

var systemTemplate = template.Must(template.New("system").Parse(systemTemplateText))

var conversationTemplate = template.Must(template.New("conversation").Funcs(template.FuncMap{
	"inc":     func(i int) int { return i + 1 },
	"speaker": speaker,
}).Parse(conversationTemplateText))

func speaker(role string) string {
	switch role {
	case "assistant", "model", "客服":
		return "客服"
	default:
		return "用户"
	}
}
