package taxonomy // taxonomy快照: 规范技能、别名、词元、消歧规则、父子与蕴含边的只读视图

import (
	"encoding/json"
	"fmt"
	"strings"

	"skillmatch-go/internal/logger"
	"skillmatch-go/internal/normalize"
	"skillmatch-go/internal/storage/models"
)

// DisambiguationRule 按技能配置的消歧规则。
// 两个词表都针对"归一化提法+上下文"的拼接文本做子串检查。
type DisambiguationRule struct {
	BlockIfContains []string `json:"block_if_contains"`
	AllowIfContains []string `json:"allow_if_contains"`
}

// Skill taxonomy中的一个规范技能条目(已解析、只读)
type Skill struct {
	Code            string
	Name            string
	NormalizedName  string // 预先归一化的显示名，exact阶段直接比较
	Category        string
	SkillType       string
	Aliases         []string // 已归一化
	RequiredTokens  []string
	Rule            *DisambiguationRule // nil表示无规则，无条件放行
	ParentSkillCode string
	Embedding       []float64
	Ordinal         int // 插入序，匹配并列时取最小者保证确定性
}

// Passes 对"归一化提法+上下文"执行消歧检查。
// 阻断词命中则拒绝；允许词表非空时必须至少命中一个；无规则放行。
func (s *Skill) Passes(normalized, context string) bool {
	if s.Rule == nil {
		return true
	}

	combined := strings.ToLower(normalized + " " + context)

	for _, blocked := range s.Rule.BlockIfContains {
		if blocked != "" && strings.Contains(combined, strings.ToLower(blocked)) {
			return false
		}
	}

	if len(s.Rule.AllowIfContains) > 0 {
		for _, allowed := range s.Rule.AllowIfContains {
			if allowed != "" && strings.Contains(combined, strings.ToLower(allowed)) {
				return true
			}
		}
		return false
	}

	return true
}

// Store taxonomy的一次性内存快照，单次匹配运行期间不可变，可安全并发读。
// 所有索引在构建时算好，查询不再加锁。
type Store struct {
	skills     []*Skill          // 按Ordinal升序
	byCode     map[string]*Skill
	byName     map[string]*Skill   // 归一化显示名 → 技能
	byAlias    map[string]*Skill   // 归一化别名 → 技能(首个注册者优先)
	children   map[string][]string // 父code → 子code列表
	implied    map[string][]string // from code → to code列表(单跳)
	categories map[string][]*Skill // 分类 → 技能列表
}

// NewStore 从数据库模型构建taxonomy快照。
// 畸形的JSON字段(别名/词元/规则)按fail-open处理: 记警告日志后当作缺省，绝不中断构建。
func NewStore(rows []models.MasterSkill, implications []models.SkillImplication) (*Store, error) {
	log := logger.Component("taxonomy")

	s := &Store{
		byCode:     make(map[string]*Skill, len(rows)),
		byName:     make(map[string]*Skill, len(rows)),
		byAlias:    make(map[string]*Skill),
		children:   make(map[string][]string),
		implied:    make(map[string][]string),
		categories: make(map[string][]*Skill),
	}

	for i := range rows {
		row := &rows[i]
		if row.SkillCode == "" {
			return nil, fmt.Errorf("taxonomy第%d行缺少skill_code", i)
		}
		if _, dup := s.byCode[row.SkillCode]; dup {
			return nil, fmt.Errorf("skill_code重复: %s", row.SkillCode)
		}

		skill := &Skill{
			Code:           row.SkillCode,
			Name:           row.SkillName,
			NormalizedName: normalize.Normalize(row.SkillName),
			Category:       row.Category,
			SkillType:      row.SkillType,
			Ordinal:        row.Ordinal,
		}

		if row.ParentSkillCode != nil {
			skill.ParentSkillCode = *row.ParentSkillCode
		}

		if len(row.Aliases) > 0 {
			var aliases []string
			if err := json.Unmarshal(row.Aliases, &aliases); err != nil {
				log.Warn().Str("skill_code", row.SkillCode).Err(err).Msg("别名JSON解析失败，忽略该字段")
			} else {
				for _, a := range aliases {
					skill.Aliases = append(skill.Aliases, normalize.Normalize(a))
				}
			}
		}

		if len(row.RequiredTokens) > 0 {
			var tokens []string
			if err := json.Unmarshal(row.RequiredTokens, &tokens); err != nil {
				log.Warn().Str("skill_code", row.SkillCode).Err(err).Msg("词元JSON解析失败，忽略该字段")
			} else {
				for _, tok := range tokens {
					skill.RequiredTokens = append(skill.RequiredTokens, strings.ToLower(tok))
				}
			}
		}

		if len(row.DisambiguationRules) > 0 {
			var rule DisambiguationRule
			if err := json.Unmarshal(row.DisambiguationRules, &rule); err != nil {
				// 规则数据损坏必须fail-open，等同于无规则
				log.Warn().Str("skill_code", row.SkillCode).Err(err).Msg("消歧规则JSON解析失败，按无规则处理")
			} else if len(rule.BlockIfContains) > 0 || len(rule.AllowIfContains) > 0 {
				skill.Rule = &rule
			}
		}

		if len(row.Embedding) > 0 {
			var vec []float64
			if err := json.Unmarshal(row.Embedding, &vec); err != nil {
				log.Warn().Str("skill_code", row.SkillCode).Err(err).Msg("技能向量JSON解析失败，该技能不参与向量匹配")
			} else {
				skill.Embedding = vec
			}
		}

		s.skills = append(s.skills, skill)
		s.byCode[skill.Code] = skill
		if skill.NormalizedName != "" {
			if _, taken := s.byName[skill.NormalizedName]; !taken {
				s.byName[skill.NormalizedName] = skill
			}
		}
		for _, alias := range skill.Aliases {
			if alias == "" {
				continue
			}
			if _, taken := s.byAlias[alias]; !taken {
				s.byAlias[alias] = skill
			}
		}
		if skill.Category != "" {
			s.categories[skill.Category] = append(s.categories[skill.Category], skill)
		}
	}

	// 父子邻接表。子表中按Ordinal序追加，保证遍历确定性。
	for _, skill := range s.skills {
		if skill.ParentSkillCode == "" {
			continue
		}
		if _, ok := s.byCode[skill.ParentSkillCode]; !ok {
			log.Warn().Str("skill_code", skill.Code).Str("parent", skill.ParentSkillCode).Msg("父技能不存在，忽略该树边")
			continue
		}
		s.children[skill.ParentSkillCode] = append(s.children[skill.ParentSkillCode], skill.Code)
	}

	// 蕴含边显式存成邻接表，只支持单跳正向查询
	for i := range implications {
		edge := &implications[i]
		if _, ok := s.byCode[edge.FromSkillCode]; !ok {
			continue
		}
		if _, ok := s.byCode[edge.ToSkillCode]; !ok {
			continue
		}
		s.implied[edge.FromSkillCode] = append(s.implied[edge.FromSkillCode], edge.ToSkillCode)
	}

	return s, nil
}

// Skills 返回按插入序排列的全部技能，供各匹配阶段线性扫描
func (s *Store) Skills() []*Skill {
	return s.skills
}

// Get 按技能代码取条目
func (s *Store) Get(code string) (*Skill, bool) {
	skill, ok := s.byCode[code]
	return skill, ok
}

// FindByExactName 按归一化显示名精确查找
func (s *Store) FindByExactName(normalized string) (*Skill, bool) {
	skill, ok := s.byName[normalized]
	return skill, ok
}

// FindByAlias 按归一化别名查找
func (s *Store) FindByAlias(normalized string) (*Skill, bool) {
	skill, ok := s.byAlias[normalized]
	return skill, ok
}

// FindByTokens 词元包含匹配: 技能的全部必需词元都出现在提法词元集中即命中。
// 单字母词元有护栏: 提法必须也是单词元，防止"C"误命中长句。
// 返回Ordinal最小的命中者。
func (s *Store) FindByTokens(mentionTokens map[string]struct{}) (*Skill, bool) {
	for _, skill := range s.skills {
		if len(skill.RequiredTokens) == 0 {
			continue
		}
		if hasSingleCharToken(skill.RequiredTokens) && len(mentionTokens) > 1 {
			continue
		}
		if containsAll(mentionTokens, skill.RequiredTokens) {
			return skill, true
		}
	}
	return nil, false
}

// ResolveSubtree 返回以root为根的子树的技能代码集合(含root自身)。
// 父指针构成森林，BFS必然终止。
func (s *Store) ResolveSubtree(rootCode string) map[string]struct{} {
	result := make(map[string]struct{})
	if _, ok := s.byCode[rootCode]; !ok {
		return result
	}

	queue := []string{rootCode}
	for len(queue) > 0 {
		code := queue[0]
		queue = queue[1:]
		if _, seen := result[code]; seen {
			continue
		}
		result[code] = struct{}{}
		queue = append(queue, s.children[code]...)
	}
	return result
}

// ResolveImplied 返回code单跳蕴含的技能代码集合。
// 蕴含边在概念上允许环，单跳查询天然不受影响；不做传递闭包。
func (s *Store) ResolveImplied(code string) map[string]struct{} {
	result := make(map[string]struct{})
	for _, to := range s.implied[code] {
		result[to] = struct{}{}
	}
	return result
}

// VectorOf 返回技能的预存向量，没有向量时第二个返回值为false
func (s *Store) VectorOf(code string) ([]float64, bool) {
	skill, ok := s.byCode[code]
	if !ok || len(skill.Embedding) == 0 {
		return nil, false
	}
	return skill.Embedding, true
}

// InCategory 返回某分类下的全部技能
func (s *Store) InCategory(category string) []*Skill {
	return s.categories[category]
}

func hasSingleCharToken(tokens []string) bool {
	for _, tok := range tokens {
		if len(tok) == 1 {
			return true
		}
	}
	return false
}

func containsAll(set map[string]struct{}, required []string) bool {
	for _, tok := range required {
		if _, ok := set[tok]; !ok {
			return false
		}
	}
	return true
}
