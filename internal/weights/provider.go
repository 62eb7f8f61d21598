package weights // 评分权重: 技能类型基础权重与按领域/资历细分的乘数

import (
	"context"
	"fmt"

	"skillmatch-go/internal/storage/models"
	"skillmatch-go/internal/types"
)

// SeniorityAny 角色权重表中的资历通配值
const SeniorityAny = "any"

// WeightSource 供数接口，由storage.MySQL实现
type WeightSource interface {
	// ListSkillTypeWeights 读取全部技能类型基础权重
	ListSkillTypeWeights(ctx context.Context) ([]models.SkillTypeWeight, error)

	// ListRoleSkillTypeWeights 读取指定领域下的角色权重(含"any"资历行)
	ListRoleSkillTypeWeights(ctx context.Context, primaryDomain string) ([]models.RoleSkillTypeWeight, error)
}

// Snapshot 单次匹配运行使用的权重快照，加载后不可变，可安全并发读。
// 配置中途变更不影响进行中的运行。
type Snapshot struct {
	base    map[string]float64 // 技能类型 → 基础权重
	role    map[string]float64 // 技能类型 → 当前(领域,资历)下的乘数
	roleAny map[string]float64 // 技能类型 → "any"资历的乘数(兜底)
}

// Load 为一次匹配运行加载权重快照
func Load(ctx context.Context, source WeightSource, domain types.PrimaryDomain, seniority types.SeniorityLevel) (*Snapshot, error) {
	s := &Snapshot{
		base:    make(map[string]float64),
		role:    make(map[string]float64),
		roleAny: make(map[string]float64),
	}

	baseRows, err := source.ListSkillTypeWeights(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载技能类型基础权重失败: %w", err)
	}
	for _, row := range baseRows {
		s.base[row.SkillType] = row.BaseWeight
	}

	roleRows, err := source.ListRoleSkillTypeWeights(ctx, string(domain))
	if err != nil {
		return nil, fmt.Errorf("加载角色权重失败: %w", err)
	}
	for _, row := range roleRows {
		switch row.SeniorityLevel {
		case string(seniority):
			s.role[row.SkillType] = row.WeightMultiplier
		case SeniorityAny:
			s.roleAny[row.SkillType] = row.WeightMultiplier
		}
	}

	return s, nil
}

// BaseWeight 技能类型的基础权重，未配置时为1.0
func (s *Snapshot) BaseWeight(skillType string) float64 {
	if w, ok := s.base[skillType]; ok {
		return w
	}
	return 1.0
}

// RoleMultiplier 当前(领域,资历)下技能类型的乘数。
// 具体资历的行优先于"any"行，都没有时为1.0。
func (s *Snapshot) RoleMultiplier(skillType string) float64 {
	if w, ok := s.role[skillType]; ok {
		return w
	}
	if w, ok := s.roleAny[skillType]; ok {
		return w
	}
	return 1.0
}

// Static 从固定映射构造快照，测试与离线工具使用
func Static(base, role map[string]float64) *Snapshot {
	s := &Snapshot{
		base:    make(map[string]float64, len(base)),
		role:    make(map[string]float64, len(role)),
		roleAny: make(map[string]float64),
	}
	for k, v := range base {
		s.base[k] = v
	}
	for k, v := range role {
		s.role[k] = v
	}
	return s
}
