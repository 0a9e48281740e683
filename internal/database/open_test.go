package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/config"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		driver  string
		name    string
		wantErr bool
	}{
		{driver: "postgres", name: "postgres"},
		{driver: "mysql", name: "mysql"},
		{driver: "sqlite", name: "sqlite"},
		{driver: "sqlite3", name: "sqlite"},
		{driver: "", wantErr: true},
		{driver: "oracle", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := Dialector(config.DatabaseConfig{Driver: tt.driver, Name: "x.db", Host: "h", Port: 1})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
		})
	}
}

func TestOpen_InMemorySQLite(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, nil)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}
