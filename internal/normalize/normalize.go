package normalize // 技能文本归一化，所有匹配阶段比较前的统一预处理

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// 保留 + 和 # (c++, c#)，其余标点折叠成空格。
	// 用Unicode类而不是\w: Go的\w只认ASCII，中日韩等非拉丁提法不能被吃掉
	punctPattern      = regexp.MustCompile(`[^\p{L}\p{N}\s+#]`)
	separatorPattern  = regexp.MustCompile(`[_\-/]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	tokenPattern      = regexp.MustCompile(`[\p{L}\p{N}+#]+`)

	// 技能短语里无信息量的修饰词，例如 "Java programming language"
	stopwords = map[string]struct{}{
		"the":         {},
		"and":         {},
		"programming": {},
		"language":    {},
		"framework":   {},
	}

	// 版本号折叠与常见变体改写。
	// 必须锚定在词元边界上，"xhtml5"不能被折叠成"xhtml"
	rewrites = []struct {
		pattern *regexp.Regexp
		to      string
	}{
		{regexp.MustCompile(`\bhtml\s*5\b`), "html"},
		{regexp.MustCompile(`\bcss\s*3\b`), "css"},
		{regexp.MustCompile(`\bc\s*sharp\b`), "c#"},
	}
)

// Normalize 将原始技能文本规约为比较用的规范形式:
// 小写、NFKD分解去掉变音符号、去标点(保留+#)、去修饰词、折叠空白。
// 幂等: Normalize(Normalize(x)) == Normalize(x)。
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	t := strings.ToLower(strings.TrimSpace(raw))
	t = stripDiacritics(t)

	// 点号直接删除(react.js → reactjs)，分隔符折叠成空格
	t = strings.ReplaceAll(t, ".", "")
	t = separatorPattern.ReplaceAllString(t, " ")
	t = punctPattern.ReplaceAllString(t, " ")

	for _, rw := range rewrites {
		t = rw.pattern.ReplaceAllString(t, rw.to)
	}

	fields := strings.Fields(t)
	kept := fields[:0]
	for _, f := range fields {
		if _, drop := stopwords[f]; drop {
			continue
		}
		kept = append(kept, f)
	}
	t = strings.Join(kept, " ")

	return whitespacePattern.ReplaceAllString(strings.TrimSpace(t), " ")
}

// Tokenize 把归一化后的文本切成小写词元集合，按空白与连字符切分
func Tokenize(normalized string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(normalized), -1) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// 复合技能提法的分隔符，"HTML/CSS" 是两个技能而不是一个
var compositeSeparators = []string{"/", "\\", ",", " & ", " and ", "+"}

// SplitComposite 把显式的复合技能提法拆成原子技能。
// 这一步只做字面拆分，不做任何推断。
func SplitComposite(raw string) []string {
	if raw == "" {
		return nil
	}

	text := strings.ToLower(strings.TrimSpace(raw))
	for _, sep := range compositeSeparators {
		text = strings.ReplaceAll(text, sep, "|")
	}

	var parts []string
	for _, p := range strings.Split(text, "|") {
		p = strings.TrimSpace(p)
		// 过滤掉拆分产生的碎片，如 "c++" 中被吃掉加号后的残渣
		if len(p) < 2 {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

// NormalizeJobTitle 岗位名称的规范化，用于确定性的职位映射
func NormalizeJobTitle(title string) string {
	if title == "" {
		return ""
	}

	t := strings.ToLower(title)
	t = separatorPattern.ReplaceAllString(t, " ")
	t = strings.ReplaceAll(t, ".net", " dot net ")
	t = strings.ReplaceAll(t, "dotnet", " dot net ")

	var b strings.Builder
	for _, r := range t {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		}
	}
	return whitespacePattern.ReplaceAllString(strings.TrimSpace(b.String()), " ")
}

// stripDiacritics NFKD分解后丢弃所有组合用变音符号
func stripDiacritics(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
