package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeBasicForms 验证常见技能写法被规约到同一规范形式
func TestNormalizeBasicForms(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"小写化", "Java", "java"},
		{"去首尾空白", "  Python  ", "python"},
		{"点号删除", "React.js", "reactjs"},
		{"Node点号", "Node.JS", "nodejs"},
		{"连字符折叠", "scikit-learn", "scikit learn"},
		{"下划线折叠", "ci_cd", "ci cd"},
		{"保留加号", "C++", "c++"},
		{"保留井号", "C#", "c#"},
		{"csharp改写", "CSharp", "c#"},
		{"html5改写", "HTML5", "html"},
		{"css3改写", "CSS3", "css"},
		{"修饰词剔除", "Java programming language", "java"},
		{"the剔除", "the Go language", "go"},
		{"变音符号", "Café", "cafe"},
		{"空串", "", ""},
		{"多余空白折叠", "machine   learning", "machine learning"},
		{"改写锚定词元边界", "XHTML5", "xhtml5"},
		{"css3边界", "SCSS3", "scss3"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

// TestNormalizeKeepsNonLatin 非拉丁文字不能被当作标点吃掉，
// 否则中文等提法在归一化后变成空串，永远走不到任何匹配阶段
func TestNormalizeKeepsNonLatin(t *testing.T) {
	assert.Equal(t, "某个冷门技能", Normalize("某个冷门技能"))
	assert.Equal(t, "数据分析 python", Normalize("数据分析 Python"))
	assert.Equal(t, "日本語", Normalize("日本語！"))

	tokens := Tokenize(Normalize("数据分析 Python"))
	assert.Contains(t, tokens, "数据分析")
	assert.Contains(t, tokens, "python")
}

// TestNormalizeIdempotent 归一化必须幂等，否则多阶段比较会漂移
func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"React.js", "C++", "Java Programming Language", "HTML5", "Café au lait", "scikit-learn"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "Normalize应当幂等: %q", in)
	}
}

// TestTokenize 验证词元切分保留+#并去重
func TestTokenize(t *testing.T) {
	tokens := Tokenize("spring boot c++ c#")
	assert.Len(t, tokens, 4)
	assert.Contains(t, tokens, "spring")
	assert.Contains(t, tokens, "boot")
	assert.Contains(t, tokens, "c++")
	assert.Contains(t, tokens, "c#")

	dup := Tokenize("go go go")
	assert.Len(t, dup, 1)

	assert.Empty(t, Tokenize(""))
}

// TestSplitComposite 复合提法按字面拆分，不做推断
func TestSplitComposite(t *testing.T) {
	assert.Equal(t, []string{"html", "css"}, SplitComposite("HTML/CSS"))
	assert.Equal(t, []string{"html", "css"}, SplitComposite("HTML, CSS"))
	assert.Equal(t, []string{"html", "css"}, SplitComposite("HTML & CSS"))
	assert.Equal(t, []string{"docker", "kubernetes"}, SplitComposite("Docker and Kubernetes"))

	// 非复合提法原样保留(小写)
	assert.Equal(t, []string{"spring boot"}, SplitComposite("Spring Boot"))

	// 拆分产生的碎片(<2字符)被丢弃
	assert.Empty(t, SplitComposite("c"))
	assert.Nil(t, SplitComposite(""))
}

// TestNormalizeJobTitle 岗位名称规范化
func TestNormalizeJobTitle(t *testing.T) {
	assert.Equal(t, "senior backend engineer", NormalizeJobTitle("Senior Backend Engineer"))
	assert.Equal(t, "full stack developer", NormalizeJobTitle("Full-Stack Developer"))
	assert.Equal(t, "dot net developer", NormalizeJobTitle(".NET Developer"))
	assert.Equal(t, "", NormalizeJobTitle(""))
}
