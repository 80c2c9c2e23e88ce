package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thruflo/voiceloops/internal/catalog"
	"github.com/thruflo/voiceloops/internal/pool"
)

// SampleRole is the role used by SampleCatalog.
const SampleRole = "FLIGHT"

// SampleLoops returns a catalog covering every capability combination:
// FD and GC can listen and talk, EECOM is listen-only, MOCR is neither.
func SampleLoops() []catalog.Loop {
	return []catalog.Loop{
		{Name: "FD", CanListen: true, CanTalk: true},
		{Name: "GC", CanListen: true, CanTalk: true},
		{Name: "EECOM", CanListen: true, CanTalk: false},
		{Name: "MOCR", CanListen: false, CanTalk: false},
	}
}

// SampleCatalog returns SampleLoops as a FLIGHT catalog.
func SampleCatalog() *catalog.Catalog {
	return catalog.New(SampleRole, SampleLoops())
}

// SampleWorkerSpecs returns n specs named BOT1..BOTn on ports 6001 upwards.
func SampleWorkerSpecs(n int) []pool.Spec {
	specs := make([]pool.Spec, n)
	for i := range specs {
		specs[i] = pool.Spec{
			Name:     fmt.Sprintf("BOT%d", i+1),
			Endpoint: fmt.Sprintf("http://127.0.0.1:%d", 6001+i),
		}
	}
	return specs
}

// WriteCatalog writes loops as <dir>/loops_<ROLE>.txt in the JSON layout the
// catalog files use.
func WriteCatalog(t *testing.T, dir, role string, loops []catalog.Loop) string {
	t.Helper()

	data, err := json.MarshalIndent(loops, "", "  ")
	require.NoError(t, err)

	path := filepath.Join(dir, catalog.FileName(role))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
