package service_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/handihub/trustgate/internal/access/store"
	"github.com/handihub/trustgate/internal/access/store/drivers/sqlite"
	"github.com/handihub/trustgate/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "trustgate-service-test")
	if err != nil {
		os.Exit(1)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))
	cryptox.SetMasterKeyPath(filepath.Join(dir, "master.key"))
	_ = os.WriteFile(filepath.Join(dir, "master.key"), []byte("service-test-master-key"), 0600)

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore("file:" + t.Name() + "?mode=memory&cache=shared&_pragma=busy_timeout(10000)")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	return s
}
