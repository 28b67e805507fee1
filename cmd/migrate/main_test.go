package main

import (
	"context"
	"io/fs"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultia/clinic-agent/internal/clinic"
	appmigrations "github.com/consultia/clinic-agent/migrations"
	"github.com/consultia/clinic-agent/pkg/logging"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestAdminFromEnvDefaults(t *testing.T) {
	seed, err := adminFromEnv(envMap(map[string]string{
		"ADMIN_EMAIL": " admin@clinica.test ",
		"ADMIN_PASS":  "secreto",
	}))
	require.NoError(t, err)
	assert.Equal(t, "admin@clinica.test", seed.Email)
	assert.Equal(t, "Administrador", seed.Name)
	assert.Equal(t, "demo", seed.TenantID)
}

func TestAdminFromEnvRequiresCredentials(t *testing.T) {
	_, err := adminFromEnv(envMap(map[string]string{"ADMIN_EMAIL": "admin@clinica.test"}))
	assert.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(appmigrations.FS, ".")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "0001_init.up.sql")
	assert.Contains(t, names, "0001_init.down.sql")
}

func TestInvalidateTenantCache(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Set("clinic:tenant:demo", `{"id":"demo","name":"Vieja"}`)
	backing := clinic.NewStaticStore(clinic.DemoTenant())
	logger := logging.New("error")

	err := invalidateTenantCache(context.Background(), backing, envMap(map[string]string{"REDIS_ADDR": mr.Addr()}), "demo", logger)
	require.NoError(t, err)
	assert.False(t, mr.Exists("clinic:tenant:demo"))

	assert.NoError(t, invalidateTenantCache(context.Background(), backing, envMap(nil), "demo", logger))
}
