package graph

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphclone/backend/internal/record"
	"graphclone/backend/internal/store"
	"graphclone/backend/internal/store/storetest"
)

// TestRepository requires a running Neo4j instance
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables
func TestRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not reachable: %v", err)
	}
	defer driver.Close(ctx)

	storetest.Run(t, func(t *testing.T) store.Store {
		label := fmt.Sprintf("TestRecord_%d", time.Now().UnixNano())
		repo, err := NewRepository(driver, storetest.PolicySchema(t), label, zap.NewNop())
		require.NoError(t, err)

		// Clean up
		t.Cleanup(func() {
			session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
			defer session.Close(ctx)
			_, _ = session.Run(ctx, fmt.Sprintf("MATCH (n:%s) DETACH DELETE n", label), nil)
		})
		return repo
	})
}

func TestNewRepository_Label(t *testing.T) {
	reg := storetest.PolicySchema(t)

	repo, err := NewRepository(nil, reg, "", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultLabel, repo.label)

	_, err = NewRepository(nil, reg, "Record) DETACH DELETE (x", zap.NewNop())
	assert.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	src := record.New("Policyholder")
	src.SetValue("name", "Ada")
	src.SetRef("identity", "id-1")
	params, err := encode(src)
	require.NoError(t, err)

	assert.Equal(t, "Policyholder", params["type"])
	assert.JSONEq(t, `{"name":"Ada"}`, params["values"].(string))
	assert.JSONEq(t, `{"identity":"id-1"}`, params["refs"].(string))
	edges := params["edges"].([]map[string]any)
	require.Len(t, edges, 1)
	assert.Equal(t, "identity", edges[0]["field"])

	row := &neo4j.Record{
		Keys:   []string{"id", "type", "values", "refs", "links"},
		Values: []any{"ph-1", "Policyholder", params["values"], params["refs"], "null"},
	}
	got, err := decode(row)
	require.NoError(t, err)
	assert.Equal(t, "ph-1", got.ID)
	assert.Equal(t, "id-1", got.Ref("identity"))
	assert.NotNil(t, got.Links)
	name, _ := got.Value("name")
	assert.Equal(t, "Ada", name)
}

func createTestDriver() (neo4j.DriverWithContext, error) {
	uri := getEnv("NEO4J_URI", "bolt://localhost:7687")
	user := getEnv("NEO4J_USER", "neo4j")
	password := getEnv("NEO4J_PASSWORD", "password")

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}

	return driver, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
