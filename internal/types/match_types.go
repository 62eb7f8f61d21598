package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// PrimaryDomain 岗位的主要领域枚举
type PrimaryDomain string

const (
	// DomainBackend 后端开发
	DomainBackend PrimaryDomain = "Backend"
	// DomainFrontend 前端开发
	DomainFrontend PrimaryDomain = "Frontend"
	// DomainFullStack 全栈开发
	DomainFullStack PrimaryDomain = "FullStack"
	// DomainData 数据工程/数据科学
	DomainData PrimaryDomain = "Data"
	// DomainDevOps 运维/平台工程
	DomainDevOps PrimaryDomain = "DevOps"
	// DomainAI AI工程
	DomainAI PrimaryDomain = "AI"
	// DomainGeneral 无法判断时的兜底领域
	DomainGeneral PrimaryDomain = "General"
)

// SeniorityLevel 岗位的资历级别枚举
type SeniorityLevel string

const (
	// SeniorityJunior 初级
	SeniorityJunior SeniorityLevel = "Junior"
	// SeniorityMid 中级
	SeniorityMid SeniorityLevel = "Mid"
	// SenioritySenior 高级
	SenioritySenior SeniorityLevel = "Senior"
	// SeniorityLead 负责人/架构师级
	SeniorityLead SeniorityLevel = "Lead"
)

// RequirementKind 区分要求联合类型的两个变体
type RequirementKind string

const (
	// KindSkill 指向具体技能的要求
	KindSkill RequirementKind = "skill"
	// KindCategory 指向技能分类(N选1)的要求
	KindCategory RequirementKind = "category"
)

// SkillRequirement 指向具体技能的岗位要求
type SkillRequirement struct {
	RawSkill         string `json:"raw_skill"`         // JD中的原始技能提法(自由文本)
	Source           string `json:"source"`            // explicit | inferred
	RequirementLevel string `json:"requirement_level"` // hard | soft
	SkillTypeHint    string `json:"skill_type_hint"`   // 技能类型提示，例如 programming_language
	MinMonths        int    `json:"min_months"`        // 最少经验月数，0表示未指定
	ExpectedEvidence string `json:"expected_evidence"` // 期望的证据形式，例如 resume_skill
}

// CategoryRequirement 指向技能分类的岗位要求(该分类下至少N个不同技能)
type CategoryRequirement struct {
	Category         string   `json:"category"`          // 分类标签，例如 "Frontend Framework"
	MinRequired      int      `json:"min_required"`      // 该分类下最少需要的不同技能数
	ExampleSkills    []string `json:"example_skills"`    // 示例技能，仅供说明，不构成强制
	RequirementLevel string   `json:"requirement_level"` // hard | soft
	Source           string   `json:"source"`            // explicit | inferred
}

// JobRequirement 岗位要求的带标签联合类型。
// Kind决定了Skill与Category里哪一个有效，另一个恒为nil。
type JobRequirement struct {
	Kind     RequirementKind      `json:"kind"`
	Skill    *SkillRequirement    `json:"skill,omitempty"`
	Category *CategoryRequirement `json:"category,omitempty"`
}

// Level 返回本条要求的级别(hard/soft)
func (r *JobRequirement) Level() string {
	switch r.Kind {
	case KindSkill:
		if r.Skill != nil {
			return r.Skill.RequirementLevel
		}
	case KindCategory:
		if r.Category != nil {
			return r.Category.RequirementLevel
		}
	}
	return ""
}

// Label 返回本条要求在结果明细中展示用的名称
func (r *JobRequirement) Label() string {
	switch r.Kind {
	case KindSkill:
		if r.Skill != nil {
			return r.Skill.RawSkill
		}
	case KindCategory:
		if r.Category != nil {
			return r.Category.Category
		}
	}
	return ""
}

// UnmarshalJSON 校验联合类型的完整性: kind必须与实际携带的变体一致
func (r *JobRequirement) UnmarshalJSON(data []byte) error {
	type alias JobRequirement
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	switch a.Kind {
	case KindSkill:
		if a.Skill == nil {
			return fmt.Errorf("requirement kind=skill 但缺少 skill 变体")
		}
	case KindCategory:
		if a.Category == nil {
			return fmt.Errorf("requirement kind=category 但缺少 category 变体")
		}
	default:
		return fmt.Errorf("未知的 requirement kind: %q", a.Kind)
	}
	*r = JobRequirement(a)
	return nil
}

// JobMetadata 岗位元信息
type JobMetadata struct {
	PrimaryDomain  PrimaryDomain  `json:"primary_domain"`
	SeniorityLevel SeniorityLevel `json:"seniority_level"`
}

// JobProfile 结构化岗位画像，由上游的LLM抽取层产出
type JobProfile struct {
	RoleContext  string           `json:"role_context"` // 角色上下文摘要，参与消歧
	JobMetadata  JobMetadata      `json:"job_metadata"`
	Requirements []JobRequirement `json:"requirements"` // 有序要求列表
}

// ResolvedSkill 技能归一化的成功结果
type ResolvedSkill struct {
	SkillCode  string  `json:"skill_code"`
	SkillType  string  `json:"skill_type"`
	Confidence float64 `json:"confidence"` // [0,1]
	Method     string  `json:"method"`     // exact | alias | rule | vector
}

// RequirementBreakdown 单条要求在某候选人身上的评分明细，
// 保证UI可以逐项解释总分的构成
type RequirementBreakdown struct {
	SkillName           string     `json:"skill_name"`     // 要求的技能名或分类名
	RequirementKind     string     `json:"type"`           // Skill | Category
	Matched             bool       `json:"matched"`        // 是否命中
	Weight              float64    `json:"weight"`         // final_w = base_w * role_w * req_w
	ExperienceMonths    int        `json:"experience_months"`
	LastUsedDate        *time.Time `json:"last_used_date,omitempty"`
	RecencyScore        float64    `json:"recency_score"`         // 1.0 / 0.6 / 0.25
	CompetencyScore     float64    `json:"competency_score"`      // depth * recency * final_w
	ContributionToTotal float64    `json:"contribution_to_total"` // 100 * competency / max_possible
	MatchedVia          string     `json:"matched_via,omitempty"` // 实际命中的技能代码
}

// MatchResult 单个候选人的最终匹配结果
type MatchResult struct {
	CandidateID       string                 `json:"candidate_id"`
	CandidateName     string                 `json:"candidate_name"`
	Score             float64                `json:"score"`      // 归一化到0-100，保留两位小数
	Confidence        string                 `json:"confidence"` // Strong/Good/Partial/Weak Match
	Breakdown         []RequirementBreakdown `json:"skill_breakdown"`
	TotalRequirements int                    `json:"total_jd_skills"`
	MatchedCount      int                    `json:"matched_skill_count"`
	UnmatchedCount    int                    `json:"unmatched_skill_count"`
}

// GateResult 资格过滤的结果。
// HardRequirementCount 用来区分"没有硬性要求(不过滤)"和"过滤后没有人合格"，
// 调用方必须看该字段而不是看Eligible是否为空。
type GateResult struct {
	HardRequirementCount int      `json:"hard_requirement_count"`
	Eligible             []string `json:"eligible"` // 候选人ID，保持确定性排序
}

// Filtered 返回资格过滤是否真正生效
func (g *GateResult) Filtered() bool {
	return g.HardRequirementCount > 0
}

// SkillFilter 候选人技能记录的查询条件，资格过滤用。
// Population非空时查询只在给定候选人范围内进行。
type SkillFilter struct {
	MinMonths           int       `json:"min_months"`            // 要求的最少月数(与证据强度二选一满足)
	MinEvidenceStrength int       `json:"min_evidence_strength"` // 证据强度下限
	MinTotalMonths      int       `json:"min_total_months"`      // 资历门槛: 总月数
	MinMidMonths        int       `json:"min_mid_months"`        // 资历门槛: 中级月数
	MinSeniorMonths     int       `json:"min_senior_months"`     // 资历门槛: 高级月数
	RecencyCutoff       time.Time `json:"recency_cutoff"`        // 最近使用日期不得早于此
	Population          []string  `json:"population,omitempty"`  // 限定的候选人范围
}
