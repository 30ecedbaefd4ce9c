package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"

	"github.com/FlorianWeber/ListFox/app/models"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{DryRun: true})
	require.NoError(t, err)
	return db
}

func TestProximityScopeOrdersByDistance(t *testing.T) {
	db := dryRunDB(t)

	var listings []models.Listing
	tx := db.Model(&models.Listing{}).Scopes(proximityScope(48.2, 16.37, 25)).Find(&listings)
	require.NoError(t, tx.Error)

	sql := tx.Statement.SQL.String()
	assert.Contains(t, sql, "ORDER BY")
	assert.Contains(t, sql, "ACOS")
	assert.Less(t, strings.Index(sql, "WHERE"), strings.Index(sql, "ORDER BY"))

	// Bounding box (4) + distance cut (3 + radius) + ordering (3).
	assert.Len(t, tx.Statement.Vars, 11)
	assert.Contains(t, tx.Statement.Vars, 25.0)
}

func TestProximityScopeBoundingBoxBrackets(t *testing.T) {
	db := dryRunDB(t)

	var listings []models.Listing
	tx := db.Model(&models.Listing{}).Scopes(proximityScope(0, 0, 100)).Find(&listings)
	require.NoError(t, tx.Error)

	sql := tx.Statement.SQL.String()
	assert.Contains(t, sql, "latitude BETWEEN")
	assert.Contains(t, sql, "longitude BETWEEN")
}
