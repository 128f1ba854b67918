package milestone

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/easyops/contextengine-go/pkg/engine"
)

// Neo4jResolver Neo4j 里程碑解析器
//
// 里程碑存为 (:Milestone {id}) 节点，前置依赖是
// (m)-[:REQUIRES]->(p) 关系，领域键是 (m)-[:COVERS]->(:Domain {key}) 关系。
type Neo4jResolver struct {
	driver neo4j.DriverWithContext
}

// Neo4jConfig Neo4j 连接配置
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
}

// NewNeo4jResolver 创建 Neo4j 里程碑解析器并验证连接。
func NewNeo4jResolver(config Neo4jConfig) (*Neo4jResolver, error) {
	if config.URI == "" {
		config.URI = "bolt://localhost:7687"
	}

	auth := neo4j.NoAuth()
	if config.Username != "" && config.Password != "" {
		auth = neo4j.BasicAuth(config.Username, config.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(config.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	resolver := &Neo4jResolver{driver: driver}

	if err := resolver.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return resolver, nil
}

// createIndexes 创建索引
func (r *Neo4jResolver) createIndexes(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	indexes := []string{
		"CREATE INDEX milestone_id IF NOT EXISTS FOR (m:Milestone) ON (m.id)",
		"CREATE INDEX domain_key IF NOT EXISTS FOR (d:Domain) ON (d.key)",
	}

	for _, idx := range indexes {
		if _, err := session.Run(ctx, idx, nil); err != nil {
			// 忽略索引已存在的错误
			if !strings.Contains(err.Error(), "already exists") {
				return err
			}
		}
	}

	return nil
}

// Register 写入一个里程碑及其依赖和领域键关系。
func (r *Neo4jResolver) Register(ctx context.Context, m Milestone) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `
	MERGE (m:Milestone {id: $id})
	WITH m
	UNWIND $prerequisites AS prereqID
	MERGE (p:Milestone {id: prereqID})
	MERGE (m)-[:REQUIRES]->(p)
	WITH DISTINCT m
	UNWIND $domainKeys AS domainKey
	MERGE (d:Domain {key: domainKey})
	MERGE (m)-[:COVERS]->(d)
	`

	// UNWIND 对空列表不产生行，拆成独立语句避免整条跳过
	if len(m.Prerequisites) == 0 && len(m.DomainKeys) == 0 {
		_, err := session.Run(ctx, "MERGE (m:Milestone {id: $id})", map[string]interface{}{"id": m.ID})
		return err
	}
	if len(m.Prerequisites) == 0 {
		query = `
		MERGE (m:Milestone {id: $id})
		WITH m
		UNWIND $domainKeys AS domainKey
		MERGE (d:Domain {key: domainKey})
		MERGE (m)-[:COVERS]->(d)
		`
	}
	if len(m.DomainKeys) == 0 {
		query = `
		MERGE (m:Milestone {id: $id})
		WITH m
		UNWIND $prerequisites AS prereqID
		MERGE (p:Milestone {id: prereqID})
		MERGE (m)-[:REQUIRES]->(p)
		`
	}

	params := map[string]interface{}{
		"id":            m.ID,
		"prerequisites": m.Prerequisites,
		"domainKeys":    m.DomainKeys,
	}

	_, err := session.Run(ctx, query, params)
	return err
}

// Prerequisites 返回直接前置里程碑列表。
func (r *Neo4jResolver) Prerequisites(ctx context.Context, milestoneID string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `
	MATCH (m:Milestone {id: $id})-[:REQUIRES]->(p:Milestone)
	RETURN p.id AS id
	ORDER BY p.id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"id": milestoneID})
	if err != nil {
		return nil, err
	}

	return collectIDs(ctx, result)
}

// DomainKeys 返回关联的知识领域键。
func (r *Neo4jResolver) DomainKeys(ctx context.Context, milestoneID string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `
	MATCH (m:Milestone {id: $id})-[:COVERS]->(d:Domain)
	RETURN d.key AS id
	ORDER BY d.key
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"id": milestoneID})
	if err != nil {
		return nil, err
	}

	return collectIDs(ctx, result)
}

// collectIDs 收集结果中的 id 列
func collectIDs(ctx context.Context, result neo4j.ResultWithContext) ([]string, error) {
	var ids []string
	for result.Next(ctx) {
		record := result.Record()
		if value, ok := record.Get("id"); ok {
			if id, ok := value.(string); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, result.Err()
}

// Close 关闭驱动连接
func (r *Neo4jResolver) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// 编译时接口检查
var _ engine.MilestoneResolver = (*Neo4jResolver)(nil)
