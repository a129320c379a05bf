package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "isak.toml")
	content := `
sys_dir = "/host/sys"
cache_file = "/run/isak/cache.yaml"
verbose = true
wait = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Config{
		SysDir:    "/host/sys",
		DevDir:    "/dev",
		CacheFile: "/run/isak/cache.yaml",
		Verbose:   true,
		Wait:      "5s",
	}, cfg)

	wait, err := cfg.WaitDuration()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, wait)
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "isak.toml")
	require.NoError(t, os.WriteFile(path, []byte(`dev_dir = "/newroot/dev"`), 0644))
	t.Setenv(EnvPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/newroot/dev", cfg.DevDir)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"syntax":        `sys_dir = `,
		"wait":          `wait = "soon"`,
		"negative wait": `wait = "-1s"`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "isak.toml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			cfg, err := Load(path)
			require.Error(t, err)
			require.Equal(t, Default(), cfg)
		})
	}
}
