// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package store

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentablerpg/otrpg/pkg/errutil"
)

type mockMigrate struct {
	upErr          error
	downErr        error
	stepsErr       error
	stepsCalls     int
	versionVal     uint
	versionErr     error
	dirty          bool
	forceErr       error
	closeSourceErr error
	closeDbErr     error
}

func (m *mockMigrate) Up() error   { return m.upErr }
func (m *mockMigrate) Down() error { return m.downErr }
func (m *mockMigrate) Steps(_ int) error {
	m.stepsCalls++
	return m.stepsErr
}
func (m *mockMigrate) Version() (uint, bool, error) { return m.versionVal, m.dirty, m.versionErr }
func (m *mockMigrate) Force(_ int) error            { return m.forceErr }
func (m *mockMigrate) Close() (error, error)        { return m.closeSourceErr, m.closeDbErr }

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/otrpg", "pgx5://u:p@localhost:5432/otrpg"},
		{"postgresql://localhost/otrpg?sslmode=disable", "pgx5://localhost/otrpg?sslmode=disable"},
		{"pgx5://localhost/otrpg", "pgx5://localhost/otrpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, migrateURL(tt.in))
	}
}

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/otrpg")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	assert.NotContains(t, err.Error(), "unknown driver postgresql")
}

func TestMigrator_UpDown(t *testing.T) {
	tests := []struct {
		name     string
		mock     *mockMigrate
		run      func(*Migrator) error
		wantCode string
	}{
		{"up success", &mockMigrate{}, (*Migrator).Up, ""},
		{"up no change", &mockMigrate{upErr: migrate.ErrNoChange}, (*Migrator).Up, ""},
		{"up failure", &mockMigrate{upErr: errors.New("database locked")}, (*Migrator).Up, "MIGRATION_UP_FAILED"},
		{"down success", &mockMigrate{}, (*Migrator).Down, ""},
		{"down no change", &mockMigrate{downErr: migrate.ErrNoChange}, (*Migrator).Down, ""},
		{"down failure", &mockMigrate{downErr: errors.New("constraint violation")}, (*Migrator).Down, "MIGRATION_DOWN_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(&Migrator{m: tt.mock})
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestMigrator_Steps(t *testing.T) {
	t.Run("zero is a no-op", func(t *testing.T) {
		mm := &mockMigrate{}
		require.NoError(t, (&Migrator{m: mm}).Steps(0))
		assert.Zero(t, mm.stepsCalls)
	})

	t.Run("no change is success", func(t *testing.T) {
		require.NoError(t, (&Migrator{m: &mockMigrate{stepsErr: migrate.ErrNoChange}}).Steps(-1))
	})

	t.Run("failure carries step count", func(t *testing.T) {
		err := (&Migrator{m: &mockMigrate{stepsErr: errors.New("boom")}}).Steps(2)
		errutil.AssertErrorCode(t, err, "MIGRATION_STEPS_FAILED")
		errutil.AssertErrorContext(t, err, "steps", 2)
	})
}

func TestMigrator_Version(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		v, dirty, err := (&Migrator{m: &mockMigrate{versionVal: 1, dirty: true}}).Version()
		require.NoError(t, err)
		assert.Equal(t, uint(1), v)
		assert.True(t, dirty)
	})

	t.Run("fresh database", func(t *testing.T) {
		v, dirty, err := (&Migrator{m: &mockMigrate{versionErr: migrate.ErrNilVersion}}).Version()
		require.NoError(t, err)
		assert.Zero(t, v)
		assert.False(t, dirty)
	})

	t.Run("failure", func(t *testing.T) {
		_, _, err := (&Migrator{m: &mockMigrate{versionErr: errors.New("connection lost")}}).Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_Force(t *testing.T) {
	require.NoError(t, (&Migrator{m: &mockMigrate{}}).Force(1))

	err := (&Migrator{m: &mockMigrate{}}).Force(-1)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")

	err = (&Migrator{m: &mockMigrate{forceErr: errors.New("locked")}}).Force(1)
	errutil.AssertErrorCode(t, err, "MIGRATION_FORCE_FAILED")
}

func TestMigrator_Close(t *testing.T) {
	tests := []struct {
		name      string
		mock      *mockMigrate
		component string
	}{
		{"source", &mockMigrate{closeSourceErr: errors.New("source close failed")}, "source"},
		{"database", &mockMigrate{closeDbErr: errors.New("db close failed")}, "database"},
		{"both", &mockMigrate{closeSourceErr: errors.New("source close failed"), closeDbErr: errors.New("db close failed")}, "both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Migrator{m: tt.mock}).Close()
			errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
			errutil.AssertErrorContext(t, err, "component", tt.component)
		})
	}

	require.NoError(t, (&Migrator{m: &mockMigrate{}}).Close())
}

func TestMigrator_PendingMigrations(t *testing.T) {
	all, err := embeddedVersions()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	latest := all[len(all)-1]

	pending, err := (&Migrator{m: &mockMigrate{versionErr: migrate.ErrNilVersion}}).PendingMigrations()
	require.NoError(t, err)
	assert.Equal(t, all, pending)

	pending, err = (&Migrator{m: &mockMigrate{versionVal: latest}}).PendingMigrations()
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = (&Migrator{m: &mockMigrate{versionErr: errors.New("connection lost")}}).PendingMigrations()
	errutil.AssertErrorContext(t, err, "operation", "get pending migrations")
}

func TestMigrator_Status(t *testing.T) {
	status, err := (&Migrator{m: &mockMigrate{versionVal: 1}}).Status()
	require.NoError(t, err)
	assert.Equal(t, uint(1), status.Version)
	assert.Equal(t, "000001_initial", status.Name)
	assert.False(t, status.Dirty)

	status, err = (&Migrator{m: &mockMigrate{versionErr: migrate.ErrNilVersion}}).Status()
	require.NoError(t, err)
	assert.Zero(t, status.Version)
	assert.Empty(t, status.Name)
	assert.NotEmpty(t, status.Pending)
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(1)
	require.NoError(t, err)
	assert.Equal(t, "000001_initial", name)

	name, err = MigrationName(999999)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	names := make(map[string]bool)
	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, entry := range entries {
		names[entry.Name()] = true
		assert.True(t, pattern.MatchString(entry.Name()),
			"file %s should match NNNNNN_name.(up|down).sql", entry.Name())
	}
	assert.True(t, names["000001_initial.up.sql"])
	assert.True(t, names["000001_initial.down.sql"])

	// Every up migration has a matching down migration.
	for name := range names {
		if up, ok := strings.CutSuffix(name, ".up.sql"); ok {
			assert.True(t, names[up+".down.sql"], "missing down migration for %s", name)
		}
	}
}
