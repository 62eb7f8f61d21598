package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"skillmatch-go/internal/config"
	"skillmatch-go/internal/storage/models"
	"skillmatch-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("skillmatch-go/storage/mysql")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	// 为所有CRUD操作注册Before和After回调
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		sqlStatement := db.Statement.SQL.String()
		if sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", sqlStatement),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		// ErrRecordNotFound 是业务逻辑正常情况的一部分，不应作为错误处理
		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// MySQL 关系库客户端: taxonomy主数据、候选人技能、权重表与向量缓存都在这里
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	// 配置GORM日志级别
	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Warn
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	// 设置连接池参数
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	// 注册OpenTelemetry追踪插件
	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := m.autoMigrateSchema(); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	currentLogger := m.db.Logger

	// 迁移期间关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	err := silentDB.AutoMigrate(
		&models.MasterSkill{},
		&models.SkillImplication{},
		&models.Candidate{},
		&models.CandidateSkill{},
		&models.EmbeddingCacheEntry{},
		&models.SkillTypeWeight{},
		&models.RoleSkillTypeWeight{},
	)

	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// ListMasterSkills 读取全部技能主数据，按插入序升序。
// taxonomy快照每次匹配运行构建一次，这里不做分页。
func (m *MySQL) ListMasterSkills(ctx context.Context) ([]models.MasterSkill, error) {
	var rows []models.MasterSkill
	if err := m.db.WithContext(ctx).Order("ordinal ASC, skill_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询技能主数据失败: %w", err)
	}
	return rows, nil
}

// ListSkillImplications 读取全部技能蕴含边
func (m *MySQL) ListSkillImplications(ctx context.Context) ([]models.SkillImplication, error) {
	var rows []models.SkillImplication
	if err := m.db.WithContext(ctx).Order("implication_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询技能蕴含边失败: %w", err)
	}
	return rows, nil
}

// ListSkillTypeWeights 读取全部技能类型基础权重
func (m *MySQL) ListSkillTypeWeights(ctx context.Context) ([]models.SkillTypeWeight, error) {
	var rows []models.SkillTypeWeight
	if err := m.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询技能类型权重失败: %w", err)
	}
	return rows, nil
}

// ListRoleSkillTypeWeights 读取指定领域的角色权重乘数(含"any"资历行)
func (m *MySQL) ListRoleSkillTypeWeights(ctx context.Context, primaryDomain string) ([]models.RoleSkillTypeWeight, error) {
	var rows []models.RoleSkillTypeWeight
	if err := m.db.WithContext(ctx).Where("primary_domain = ?", primaryDomain).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询角色权重失败: %w", err)
	}
	return rows, nil
}

// ListCandidateIDs 返回全部候选人ID，升序
func (m *MySQL) ListCandidateIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := m.db.WithContext(ctx).Model(&models.Candidate{}).
		Order("candidate_id ASC").
		Pluck("candidate_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("查询候选人ID列表失败: %w", err)
	}
	return ids, nil
}

// CandidateNames 批量查询候选人显示名
func (m *MySQL) CandidateNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	var rows []models.Candidate
	if err := m.db.WithContext(ctx).
		Select("candidate_id", "primary_name").
		Where("candidate_id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询候选人名称失败: %w", err)
	}

	for _, row := range rows {
		names[row.CandidateID] = row.PrimaryName
	}
	return names, nil
}

// skillRowFilter 把过滤条件翻译成candidate_skills上的WHERE子句。
// 月数与证据强度是"或"的关系: 经验月数不够但证据足够强也算通过。
func skillRowFilter(db *gorm.DB, filter types.SkillFilter) *gorm.DB {
	db = db.Where("(total_months >= ? OR max_evidence_strength >= ?)", filter.MinMonths, filter.MinEvidenceStrength)

	if filter.MinTotalMonths > 0 {
		db = db.Where("total_months >= ?", filter.MinTotalMonths)
	}
	if filter.MinMidMonths > 0 {
		db = db.Where("mid_months >= ?", filter.MinMidMonths)
	}
	if filter.MinSeniorMonths > 0 {
		db = db.Where("senior_months >= ?", filter.MinSeniorMonths)
	}
	if !filter.RecencyCutoff.IsZero() {
		db = db.Where("last_used_date IS NOT NULL AND last_used_date >= ?", filter.RecencyCutoff)
	}
	if len(filter.Population) > 0 {
		db = db.Where("candidate_id IN ?", filter.Population)
	}
	return db
}

// CandidatesBySkillSet 返回持有skillCodes中任一技能且满足过滤条件的候选人ID，升序去重
func (m *MySQL) CandidatesBySkillSet(ctx context.Context, skillCodes []string, filter types.SkillFilter) ([]string, error) {
	if len(skillCodes) == 0 {
		return []string{}, nil
	}

	ctx, span := mysqlTracer.Start(ctx, "MySQL.CandidatesBySkillSet",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMySQL,
			attribute.String("db.sql.table", "candidate_skills"),
			attribute.Int("skill_set.size", len(skillCodes)),
		))
	defer span.End()

	query := m.db.WithContext(ctx).Model(&models.CandidateSkill{}).
		Where("skill_code IN ?", skillCodes)
	query = skillRowFilter(query, filter)

	var ids []string
	if err := query.Distinct("candidate_id").Order("candidate_id ASC").Pluck("candidate_id", &ids).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("按技能集查询候选人失败: %w", err)
	}

	span.SetAttributes(attribute.Int("result.count", len(ids)))
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// CandidatesByCategory 返回在指定分类下持有至少minRequired个不同合格技能的候选人ID。
// 分类归属以master_skills.category为准，每个技能行都要独立满足过滤条件。
func (m *MySQL) CandidatesByCategory(ctx context.Context, category string, minRequired int, filter types.SkillFilter) ([]string, error) {
	if minRequired < 1 {
		minRequired = 1
	}

	ctx, span := mysqlTracer.Start(ctx, "MySQL.CandidatesByCategory",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMySQL,
			attribute.String("db.sql.table", "candidate_skills"),
			attribute.String("category", category),
			attribute.Int("min_required", minRequired),
		))
	defer span.End()

	query := m.db.WithContext(ctx).Model(&models.CandidateSkill{}).
		Joins("JOIN master_skills ON master_skills.skill_code = candidate_skills.skill_code").
		Where("master_skills.category = ?", category)
	query = skillRowFilter(query, filter)

	var ids []string
	err := query.
		Group("candidate_skills.candidate_id").
		Having("COUNT(DISTINCT candidate_skills.skill_code) >= ?", minRequired).
		Order("candidate_skills.candidate_id ASC").
		Pluck("candidate_skills.candidate_id", &ids).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("按分类查询候选人失败: %w", err)
	}

	span.SetAttributes(attribute.Int("result.count", len(ids)))
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// CandidateSkills 返回单个候选人的全部技能记录，按技能代码升序
func (m *MySQL) CandidateSkills(ctx context.Context, candidateID string) ([]models.CandidateSkill, error) {
	var rows []models.CandidateSkill
	if err := m.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Order("skill_code ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询候选人技能记录失败: %w", err)
	}
	return rows, nil
}

// EmbeddingCacheStore embedding_cache表的持久层，实现embedding.CacheStore
type EmbeddingCacheStore struct {
	db *gorm.DB
}

// NewEmbeddingCacheStore 创建向量缓存持久层
func NewEmbeddingCacheStore(m *MySQL) *EmbeddingCacheStore {
	return &EmbeddingCacheStore{db: m.db}
}

// Lookup 按精确输入文本查缓存，未命中返回(nil, false, nil)
func (s *EmbeddingCacheStore) Lookup(ctx context.Context, text string) ([]float64, bool, error) {
	var entry models.EmbeddingCacheEntry
	err := s.db.WithContext(ctx).Where("input_text = ?", text).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("查询向量缓存失败: %w", err)
	}

	var vector []float64
	if err := json.Unmarshal(entry.Embedding, &vector); err != nil {
		return nil, false, fmt.Errorf("解析缓存向量失败: %w", err)
	}
	return vector, true, nil
}

// Insert 写入新的缓存条目。
// 并发插入同一文本时靠唯一索引兜底，冲突按幂等处理。
func (s *EmbeddingCacheStore) Insert(ctx context.Context, text string, vector []float64) error {
	embeddingJSON, err := models.FloatsToJSON(vector)
	if err != nil {
		return fmt.Errorf("序列化向量失败: %w", err)
	}

	entry := models.EmbeddingCacheEntry{
		InputText:  text,
		Embedding:  embeddingJSON,
		AccessedAt: time.Now(),
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "input_text"}},
		DoNothing: true,
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("写入向量缓存失败: %w", err)
	}
	return nil
}

// Touch 更新缓存条目的访问统计
func (s *EmbeddingCacheStore) Touch(ctx context.Context, text string, accessedAt time.Time, delta int64) error {
	return s.db.WithContext(ctx).Model(&models.EmbeddingCacheEntry{}).
		Where("input_text = ?", text).
		Updates(map[string]interface{}{
			"accessed_at":  accessedAt,
			"access_count": gorm.Expr("access_count + ?", delta),
		}).Error
}
