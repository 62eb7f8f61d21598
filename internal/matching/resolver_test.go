package matching

import (
	"context"
	"errors"
	"sync"
	"testing"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"skillmatch-go/internal/constants"
	"skillmatch-go/internal/embedding"
	"skillmatch-go/internal/storage/models"
	"skillmatch-go/internal/taxonomy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, values []string) []byte {
	t.Helper()
	data, err := models.StringsToJSON(values)
	require.NoError(t, err)
	return data
}

func mustVec(t *testing.T, values []float64) []byte {
	t.Helper()
	data, err := models.FloatsToJSON(values)
	require.NoError(t, err)
	return data
}

// mockEmbedder 手写的TextEmbedder桩实现，按文本返回预设向量
type mockEmbedder struct {
	vectors map[string][]float64
	err     error
	calls   int
}

func (m *mockEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...einoembedding.Option) ([][]float64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, ok := m.vectors[text]
		if !ok {
			vec = []float64{0, 0, 1} // 与所有测试技能都不相似
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbedder) GetDimensions() int { return 3 }

// mockRecorder 手写的MentionRecorder桩实现
type mockRecorder struct {
	mu       sync.Mutex
	mentions []string
}

func (m *mockRecorder) RecordUnresolved(_ context.Context, mention, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mentions = append(m.mentions, mention)
	return nil
}

// resolverTaxonomy 构造级联测试用的taxonomy:
// java走exact；react走alias且带react native阻断；
// spring boot走词元；terraform只有向量
func resolverTaxonomy(t *testing.T) *taxonomy.Store {
	t.Helper()

	rows := []models.MasterSkill{
		{
			SkillCode: "SKILL_JAVA",
			SkillName: "Java",
			SkillType: "programming_language",
			Embedding: mustVec(t, []float64{1, 0, 0}),
			Ordinal:   1,
		},
		{
			SkillCode:           "SKILL_REACT",
			SkillName:           "React",
			SkillType:           "framework",
			Aliases:             mustJSON(t, []string{"React.js"}),
			DisambiguationRules: []byte(`{"block_if_contains":["react native"]}`),
			Embedding:           mustVec(t, []float64{0, 1, 0}),
			Ordinal:             2,
		},
		{
			SkillCode:      "SKILL_SPRING_BOOT",
			SkillName:      "Spring Boot",
			SkillType:      "framework",
			RequiredTokens: mustJSON(t, []string{"spring", "boot"}),
			Ordinal:        3,
		},
		{
			SkillCode: "SKILL_TERRAFORM",
			SkillName: "Terraform",
			SkillType: "devops_tool",
			Embedding: mustVec(t, []float64{0.7, 0.7, 0}),
			Ordinal:   4,
		},
	}

	store, err := taxonomy.NewStore(rows, nil)
	require.NoError(t, err)
	return store
}

// TestResolveExactStage 归一化显示名精确命中，置信度1.00
func TestResolveExactStage(t *testing.T) {
	resolver := NewResolver(resolverTaxonomy(t), nil, nil, 0)

	resolved, err := resolver.Resolve(context.Background(), "Java", "")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "SKILL_JAVA", resolved.SkillCode)
	assert.Equal(t, constants.MethodExact, resolved.Method)
	assert.Equal(t, constants.ConfidenceExact, resolved.Confidence)
}

// TestResolveExactSkipsLaterStages 精确命中后级联立即短路，
// 即使配置了向量阶段也不能发起embedding调用
func TestResolveExactSkipsLaterStages(t *testing.T) {
	tax := resolverTaxonomy(t)
	embedder := &mockEmbedder{vectors: map[string][]float64{}}
	cache := embedding.NewCache(nil)
	resolver := NewResolver(tax, cache, embedder, 0.92)

	resolved, err := resolver.Resolve(context.Background(), "Java", "")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, constants.MethodExact, resolved.Method)
	assert.Equal(t, 0, embedder.calls, "精确命中不应触达向量服务")
}

// TestResolveAliasStage 别名命中，置信度0.95
func TestResolveAliasStage(t *testing.T) {
	resolver := NewResolver(resolverTaxonomy(t), nil, nil, 0)

	resolved, err := resolver.Resolve(context.Background(), "React.js", "前端开发")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "SKILL_REACT", resolved.SkillCode)
	assert.Equal(t, constants.MethodAlias, resolved.Method)
	assert.Equal(t, constants.ConfidenceAlias, resolved.Confidence)
}

// TestResolveTokenStage 词元包含命中，置信度0.90
func TestResolveTokenStage(t *testing.T) {
	resolver := NewResolver(resolverTaxonomy(t), nil, nil, 0)

	resolved, err := resolver.Resolve(context.Background(), "Spring Boot 3", "")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "SKILL_SPRING_BOOT", resolved.SkillCode)
	assert.Equal(t, constants.MethodRule, resolved.Method)
	assert.Equal(t, constants.ConfidenceRule, resolved.Confidence)
}

// TestResolveDisambiguationFallsToNextStage 消歧拒绝使阶段作废，落入下一阶段而不是同阶段换技能
func TestResolveDisambiguationFallsToNextStage(t *testing.T) {
	tax := resolverTaxonomy(t)
	embedder := &mockEmbedder{vectors: map[string][]float64{}}
	cache := embedding.NewCache(nil)
	resolver := NewResolver(tax, cache, embedder, 0.92)

	// 上下文含阻断词: alias阶段的React候选被拒绝，
	// 后续阶段也无命中 → NoMatch而不是错误
	resolved, err := resolver.Resolve(context.Background(), "React.js", "react native移动端")
	require.NoError(t, err)
	assert.Nil(t, resolved, "被消歧拒绝且无后续候选时应为NoMatch")
}

// TestResolveVectorStage 前三阶段无命中时走向量匹配，置信度取相似度
func TestResolveVectorStage(t *testing.T) {
	tax := resolverTaxonomy(t)
	embedder := &mockEmbedder{vectors: map[string][]float64{
		// "tf infra tool"与Terraform向量完全一致
		"tf infra tool": {0.7, 0.7, 0},
	}}
	cache := embedding.NewCache(nil)
	resolver := NewResolver(tax, cache, embedder, 0.92)

	resolved, err := resolver.Resolve(context.Background(), "TF Infra Tool", "")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "SKILL_TERRAFORM", resolved.SkillCode)
	assert.Equal(t, constants.MethodVector, resolved.Method)
	assert.InDelta(t, 1.0, resolved.Confidence, 1e-9)
}

// TestResolveVectorBelowThreshold 相似度低于阈值时为NoMatch
func TestResolveVectorBelowThreshold(t *testing.T) {
	tax := resolverTaxonomy(t)
	embedder := &mockEmbedder{vectors: map[string][]float64{}}
	cache := embedding.NewCache(nil)
	resolver := NewResolver(tax, cache, embedder, 0.92)

	resolved, err := resolver.Resolve(context.Background(), "完全无关的技能", "")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

// TestResolveVectorServiceFailure 向量服务故障作为错误上抛，不降级为NoMatch
func TestResolveVectorServiceFailure(t *testing.T) {
	tax := resolverTaxonomy(t)
	embedder := &mockEmbedder{err: errors.New("服务不可用")}
	cache := embedding.NewCache(nil)
	resolver := NewResolver(tax, cache, embedder, 0.92)

	_, err := resolver.Resolve(context.Background(), "某个冷门技能", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), constants.MethodVector)
}

// TestResolveNoVectorStageWithoutEmbedder 未提供embedder时级联在token阶段结束
func TestResolveNoVectorStageWithoutEmbedder(t *testing.T) {
	resolver := NewResolver(resolverTaxonomy(t), nil, nil, 0.92)

	resolved, err := resolver.Resolve(context.Background(), "某个冷门技能", "")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

// TestResolveEmptyMention 空提法直接NoMatch
func TestResolveEmptyMention(t *testing.T) {
	resolver := NewResolver(resolverTaxonomy(t), nil, nil, 0)

	resolved, err := resolver.Resolve(context.Background(), "   ", "")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

// TestResolveBuffersUnresolvedOnce NoMatch的提法入维护缓冲，同一提法只入队一次
func TestResolveBuffersUnresolvedOnce(t *testing.T) {
	recorder := &mockRecorder{}
	resolver := NewResolver(resolverTaxonomy(t), nil, nil, 0, WithMentionRecorder(recorder))

	for i := 0; i < 3; i++ {
		resolved, err := resolver.Resolve(context.Background(), "Obscure Skill X", "")
		require.NoError(t, err)
		assert.Nil(t, resolved)
	}

	assert.Equal(t, []string{"Obscure Skill X"}, recorder.mentions, "同一提法不应重复入队")
}
