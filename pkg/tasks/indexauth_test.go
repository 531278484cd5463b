package tasks

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/pypi"
	"github.com/rzbill/slipway/pkg/vars"
)

func testConnections(t *testing.T) ConnectionLookup {
	t.Helper()
	return func(name string) (pypi.RepositoryConfig, error) {
		if name != "openpatchminer" {
			return pypi.RepositoryConfig{}, fmt.Errorf("unknown index connection %q", name)
		}
		return pypi.RepositoryConfig{
			Name:     "openpatchminer",
			URL:      "https://upload.pypi.org/legacy/",
			Username: "__token__",
			Password: "pypi-AgEIcHlwaS5vcmc",
		}, nil
	}
}

func TestIndexAuthMaterializesAndExports(t *testing.T) {
	t.Parallel()

	staging := t.TempDir()
	task := &IndexAuthTask{}
	tc := &TaskContext{
		Inputs:     map[string]string{"connection": "openpatchminer"},
		Vars:       vars.New(),
		Env:        map[string]string{},
		StagingDir: staging,
		Connection: testConnections(t),
		Logger:     log.NewTestLogger(),
	}

	if err := task.Run(context.Background(), tc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	path, ok := tc.Vars.Get("PYPIRC_PATH")
	if !ok || path == "" {
		t.Fatal("PYPIRC_PATH var not exported")
	}
	if tc.Env["PYPIRC_PATH"] != path {
		t.Errorf("PYPIRC_PATH env = %q, want %q", tc.Env["PYPIRC_PATH"], path)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("materialized file missing: %v", err)
	}

	rc, err := pypi.ParsePypirc(path)
	if err != nil {
		t.Fatalf("parse materialized .pypirc: %v", err)
	}
	repo, err := rc.Lookup("openpatchminer")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if repo.Username != "__token__" {
		t.Errorf("username = %q", repo.Username)
	}
}

func TestIndexAuthExportsStepVisiblePath(t *testing.T) {
	t.Parallel()

	staging := t.TempDir()
	task := &IndexAuthTask{}
	tc := &TaskContext{
		Inputs:       map[string]string{"connection": "openpatchminer"},
		Vars:         vars.New(),
		Env:          map[string]string{},
		StagingDir:   staging,
		StagingMount: "/slipway/staging",
		ExecutorName: "docker",
		Connection:   testConnections(t),
		Logger:       log.NewTestLogger(),
	}

	if err := task.Run(context.Background(), tc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	path, _ := tc.Vars.Get("PYPIRC_PATH")
	if path != "/slipway/staging/.pypirc" {
		t.Errorf("PYPIRC_PATH = %q, want container path", path)
	}

	// The file itself lives in the host staging dir.
	if _, err := os.Stat(tc.HostPath(path)); err != nil {
		t.Fatalf("materialized file missing on host: %v", err)
	}
}

func TestIndexAuthUnknownConnection(t *testing.T) {
	t.Parallel()

	task := &IndexAuthTask{}
	tc := &TaskContext{
		Inputs:     map[string]string{"connection": "pypi-prod"},
		Vars:       vars.New(),
		Env:        map[string]string{},
		StagingDir: t.TempDir(),
		Connection: testConnections(t),
		Logger:     log.NewTestLogger(),
	}

	err := task.Run(context.Background(), tc)
	if err == nil {
		t.Fatal("expected error for unknown connection")
	}
	if !strings.Contains(err.Error(), "slipfile.yaml") {
		t.Errorf("error should hint at configuration, got: %v", err)
	}
}

func TestIndexAuthRequiresConnectionInput(t *testing.T) {
	t.Parallel()

	task := &IndexAuthTask{}
	tc := &TaskContext{
		Vars:       vars.New(),
		Env:        map[string]string{},
		StagingDir: t.TempDir(),
		Connection: testConnections(t),
		Logger:     log.NewTestLogger(),
	}

	if err := task.Run(context.Background(), tc); err == nil {
		t.Fatal("expected error for missing connection input")
	}
}
