package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// MasterSkill 技能主数据表，taxonomy的规范条目。
// SkillCode全局唯一；ParentSkillCode构成无环的森林结构。
// 本引擎只读，增删改由外部的taxonomy维护流程负责。
type MasterSkill struct {
	SkillID             uint64         `gorm:"primaryKey;autoIncrement"`
	SkillCode           string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_master_skills_code_unique"`
	SkillName           string         `gorm:"type:varchar(255);not null"`
	Category            string         `gorm:"type:varchar(100);index:idx_master_skills_category"`
	SkillType           string         `gorm:"type:varchar(50);not null"`
	Aliases             datatypes.JSON `gorm:"type:json"` // 别名字符串数组
	RequiredTokens      datatypes.JSON `gorm:"type:json"` // 词元匹配所需的全部词元
	DisambiguationRules datatypes.JSON `gorm:"type:json"` // {"block_if_contains":[],"allow_if_contains":[]}
	ParentSkillCode     *string        `gorm:"type:varchar(100);index:idx_master_skills_parent"`
	Embedding           datatypes.JSON `gorm:"type:json"` // 固定维度的浮点向量
	Ordinal             int            `gorm:"not null;default:0;index:idx_master_skills_ordinal"` // 插入序，同阶段并列时的确定性依据
	CreatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (MasterSkill) TableName() string {
	return "master_skills"
}

// SkillImplication 技能蕴含有向边: 拥有From技能即以stated置信度蕴含To技能。
// 不对称；引擎只做单跳正向查询，不求传递闭包。
type SkillImplication struct {
	ImplicationID uint64    `gorm:"primaryKey;autoIncrement"`
	FromSkillCode string    `gorm:"type:varchar(100);not null;index:idx_skill_implications_from"`
	ToSkillCode   string    `gorm:"type:varchar(100);not null"`
	Confidence    float64   `gorm:"type:decimal(4,3);not null"` // (0,1]
	Explanation   string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (SkillImplication) TableName() string {
	return "skill_implications"
}

// Candidate 候选人主表
type Candidate struct {
	CandidateID    string    `gorm:"type:char(36);primaryKey"`
	PrimaryName    string    `gorm:"type:varchar(255)"`
	ProfileSummary string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt      time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// CandidateSkill 候选人技能记录，(CandidateID, SkillCode)唯一。
// 同一技能在多段经历中出现时由上游摄入流程累加合并，这里永远只有一行。
type CandidateSkill struct {
	CandidateSkillID         uint64     `gorm:"primaryKey;autoIncrement"`
	CandidateID              string     `gorm:"type:char(36);not null;uniqueIndex:idx_candidate_skills_unique,priority:1;index:idx_candidate_skills_candidate"`
	SkillCode                string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_candidate_skills_unique,priority:2;index:idx_candidate_skills_skill"`
	TotalMonths              int        `gorm:"not null;default:0"`
	JuniorMonths             int        `gorm:"not null;default:0"`
	MidMonths                int        `gorm:"not null;default:0"`
	SeniorMonths             int        `gorm:"not null;default:0"`
	FirstUsedDate            *time.Time `gorm:"type:date"`
	LastUsedDate             *time.Time `gorm:"type:date;index:idx_candidate_skills_last_used"`
	NormalizationConfidence  float64    `gorm:"type:decimal(4,3);default:0"`
	NormalizationMethod      string     `gorm:"type:varchar(20)"` // exact | alias | rule | vector
	EvidenceScore            float64    `gorm:"type:decimal(6,3);default:0"`
	MaxEvidenceStrength      int        `gorm:"not null;default:1"`
	CreatedAt                time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt                time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (CandidateSkill) TableName() string {
	return "candidate_skills"
}

// EmbeddingCacheEntry 向量缓存表，按输入文本(未归一化的精确串)做唯一键。
// AccessedAt/AccessCount仅供运营分析与淘汰策略，不影响正确性。
type EmbeddingCacheEntry struct {
	CacheID     uint64         `gorm:"primaryKey;autoIncrement"`
	InputText   string         `gorm:"type:varchar(768);not null;uniqueIndex:idx_embedding_cache_input_unique"`
	Embedding   datatypes.JSON `gorm:"type:json;not null"`
	CreatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	AccessedAt  time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	AccessCount int64          `gorm:"not null;default:0"`
}

func (EmbeddingCacheEntry) TableName() string {
	return "embedding_cache"
}

// SkillTypeWeight 技能类型的基础权重，静态配置数据
type SkillTypeWeight struct {
	SkillType  string    `gorm:"type:varchar(50);primaryKey"`
	BaseWeight float64   `gorm:"type:decimal(5,3);not null;default:1.0"`
	UpdatedAt  time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (SkillTypeWeight) TableName() string {
	return "skill_type_weights"
}

// RoleSkillTypeWeight 按(领域, 技能类型, 资历级别)细分的权重乘数。
// SeniorityLevel允许"any"通配，具体级别的行优先生效。
type RoleSkillTypeWeight struct {
	RoleWeightID     uint64    `gorm:"primaryKey;autoIncrement"`
	PrimaryDomain    string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_role_weights_unique,priority:1"`
	SkillType        string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_role_weights_unique,priority:2"`
	SeniorityLevel   string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_role_weights_unique,priority:3"`
	WeightMultiplier float64   `gorm:"type:decimal(5,3);not null;default:1.0"`
	UpdatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (RoleSkillTypeWeight) TableName() string {
	return "role_skill_type_weights"
}

// StringsToJSON 把字符串切片转成datatypes.JSON，taxonomy种子数据使用
func StringsToJSON(values []string) (datatypes.JSON, error) {
	bytes, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// FloatsToJSON 把向量转成datatypes.JSON
func FloatsToJSON(values []float64) (datatypes.JSON, error) {
	bytes, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
