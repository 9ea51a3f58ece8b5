package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
server:
  port: 9090
mongo:
  url: "mongodb://mongo:27017"
  database: "chat"
im:
  staging_dir: "/tmp/staging"
  presence_ref_count: true
  dispatch_workers: 8
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	return dir
}

func TestLoadConfigFrom_File(t *testing.T) {
	dir := writeConfig(t, testYAML)

	require.NoError(t, LoadConfigFrom(dir))
	require.NotNil(t, Cfg)

	assert.Equal(t, 9090, Cfg.Server.Port)
	assert.Equal(t, "mongodb://mongo:27017", Cfg.Mongo.URL)
	assert.Equal(t, "chat", Cfg.Mongo.Database)
	assert.Equal(t, "/tmp/staging", Cfg.IM.StagingDir)
	assert.True(t, Cfg.IM.PresenceRefCount)
	assert.Equal(t, 8, Cfg.IM.DispatchWorkers)
}

func TestLoadConfigFrom_Defaults(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, LoadConfigFrom(dir))

	assert.Equal(t, 8080, Cfg.Server.Port)
	assert.Equal(t, int64(10*1024*1024), Cfg.IM.MaxUploadSize)
	assert.Equal(t, 4, Cfg.IM.DispatchWorkers)
	assert.Equal(t, 4096, Cfg.IM.DispatchQueueSize)
	assert.False(t, Cfg.IM.PresenceRefCount)
	assert.Equal(t, "canal-users", Cfg.KafkaUserConsumer.Topic)
	assert.Equal(t, []string{"http://localhost:3000"}, Cfg.IM.AllowedOrigins)
}

func TestLoadConfigFrom_EnvOverride(t *testing.T) {
	dir := writeConfig(t, testYAML)
	t.Setenv("ZALOR_MONGO_DATABASE", "override")
	t.Setenv("ZALOR_JWT_SECRET", "s3cret")

	require.NoError(t, LoadConfigFrom(dir))

	assert.Equal(t, "override", Cfg.Mongo.Database)
	assert.Equal(t, "s3cret", Cfg.JWT.Secret)
}

func TestLoadConfigFrom_Malformed(t *testing.T) {
	dir := writeConfig(t, "server: [unclosed")

	assert.Error(t, LoadConfigFrom(dir))
}
