package conda

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/condabundle/pkg/errors"
	"github.com/matzehuels/condabundle/pkg/process"
)

const installerScript = "#!/bin/bash\necho fake miniconda\n"

func newInstallerServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/miniconda/{file}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "file") != "Miniconda3-latest-Linux-x86_64.sh" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(installerScript))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateArgs(t *testing.T) {
	tests := []struct {
		name string
		opts CreateOptions
		want []string
	}{
		{
			name: "clone when no packages",
			opts: CreateOptions{Prefix: "/build/app-1.0", CloneFrom: "/opt/conda"},
			want: []string{"create", "--yes", "--copy", "--clone", "/opt/conda", "--prefix", "/build/app-1.0"},
		},
		{
			name: "packages in order",
			opts: CreateOptions{Prefix: "/build/app-1.0", Packages: []string{"python=3.11", "numpy", "attrs"}},
			want: []string{"create", "--yes", "--copy", "--prefix", "/build/app-1.0", "python=3.11", "numpy", "attrs"},
		},
		{
			name: "packages ignore clone source",
			opts: CreateOptions{Prefix: "/p", Packages: []string{"python"}, CloneFrom: "/opt/conda"},
			want: []string{"create", "--yes", "--copy", "--prefix", "/p", "python"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CreateArgs(tt.opts); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CreateArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInstallArgs(t *testing.T) {
	got := InstallArgs("/tmp/conda.sh", "/opt/conda")
	want := []string{"/tmp/conda.sh", "-b", "-f", "-p", "/opt/conda"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("InstallArgs() = %q, want %q", got, want)
	}
}

func TestCreate(t *testing.T) {
	rec := &process.Recorder{}
	m := New("/opt/conda/bin/conda", rec, nil)

	err := m.Create(context.Background(), CreateOptions{Prefix: "/build/env", Packages: []string{"python=3.11"}})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	cmd, ok := rec.Last()
	if !ok {
		t.Fatal("no command recorded")
	}
	if cmd.Name != "/opt/conda/bin/conda" {
		t.Errorf("Name = %q", cmd.Name)
	}
	if !reflect.DeepEqual(cmd.Args, []string{"create", "--yes", "--copy", "--prefix", "/build/env", "python=3.11"}) {
		t.Errorf("Args = %q", cmd.Args)
	}
}

func TestCreateDefaultBin(t *testing.T) {
	rec := &process.Recorder{}
	m := &Manager{Exec: rec}
	if err := m.Create(context.Background(), CreateOptions{Prefix: "/p", CloneFrom: "/ref"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if cmd, _ := rec.Last(); cmd.Name != DefaultBin {
		t.Errorf("Name = %q, want %q", cmd.Name, DefaultBin)
	}
}

func TestCreateErrors(t *testing.T) {
	failing := &process.Recorder{Handler: func(context.Context, process.Command) error {
		return &process.ExitError{ExitCode: 1, Output: "PackagesNotFoundError"}
	}}

	tests := []struct {
		name     string
		exec     *process.Recorder
		opts     CreateOptions
		wantCode errors.Code
		wantRuns int
	}{
		{
			name:     "conda exits non-zero",
			exec:     failing,
			opts:     CreateOptions{Prefix: "/p", Packages: []string{"nosuchpkg"}},
			wantCode: errors.ErrCodeProvisioning,
			wantRuns: 1,
		},
		{
			name:     "nothing to install or clone",
			exec:     &process.Recorder{},
			opts:     CreateOptions{Prefix: "/p"},
			wantCode: errors.ErrCodeConfiguration,
		},
		{
			name:     "flag-like package spec",
			exec:     &process.Recorder{},
			opts:     CreateOptions{Prefix: "/p", Packages: []string{"--offline"}},
			wantCode: errors.ErrCodeConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New("conda", tt.exec, nil)
			err := m.Create(context.Background(), tt.opts)
			if !errors.Is(err, tt.wantCode) {
				t.Errorf("Create() error = %v, want code %s", err, tt.wantCode)
			}
			if got := len(tt.exec.Commands()); got != tt.wantRuns {
				t.Errorf("ran %d commands, want %d", got, tt.wantRuns)
			}
		})
	}
}

func TestInstall(t *testing.T) {
	srv := newInstallerServer(t)
	prefix := filepath.Join(t.TempDir(), "conda")

	var script string
	rec := &process.Recorder{Handler: func(_ context.Context, cmd process.Command) error {
		script = cmd.Args[0]
		data, err := os.ReadFile(script)
		if err != nil {
			t.Errorf("installer not present while running: %v", err)
		} else if string(data) != installerScript {
			t.Errorf("installer content = %q", data)
		}
		if err := os.MkdirAll(filepath.Join(prefix, "bin"), 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(prefix, "bin", "conda"), []byte("#!/bin/sh\n"), 0o755)
	}}

	m := New("", rec, nil)
	m.HTTP = srv.Client()

	bin, err := m.Install(context.Background(), srv.URL+"/miniconda/Miniconda3-latest-Linux-x86_64.sh", prefix)
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if want := filepath.Join(prefix, "bin", "conda"); bin != want {
		t.Errorf("Install() = %q, want %q", bin, want)
	}

	cmd, _ := rec.Last()
	if cmd.Name != "bash" || !reflect.DeepEqual(cmd.Args[1:], []string{"-b", "-f", "-p", prefix}) {
		t.Errorf("installer command = %s", cmd)
	}
	if _, err := os.Stat(filepath.Dir(script)); !os.IsNotExist(err) {
		t.Errorf("installer download dir should be removed, stat err = %v", err)
	}
	if m.Bin != DefaultBin {
		t.Errorf("Install() should not change Bin, got %q", m.Bin)
	}
}

func TestInstallErrors(t *testing.T) {
	srv := newInstallerServer(t)
	url := srv.URL + "/miniconda/Miniconda3-latest-Linux-x86_64.sh"

	tests := []struct {
		name     string
		url      string
		handler  process.Func
		wantRuns int
	}{
		{
			name:     "installer not found",
			url:      srv.URL + "/miniconda/missing.sh",
			wantRuns: 0,
		},
		{
			name: "installer exits non-zero",
			url:  url,
			handler: func(context.Context, process.Command) error {
				return &process.ExitError{ExitCode: 1}
			},
			wantRuns: 1,
		},
		{
			name:     "installer leaves no binary",
			url:      url,
			wantRuns: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &process.Recorder{Handler: tt.handler}
			m := New("", rec, nil)
			m.HTTP = srv.Client()

			_, err := m.Install(context.Background(), tt.url, t.TempDir())
			if !errors.Is(err, errors.ErrCodeProvisioning) {
				t.Errorf("Install() error = %v, want PROVISIONING_ERROR", err)
			}
			if got := len(rec.Commands()); got != tt.wantRuns {
				t.Errorf("ran %d commands, want %d", got, tt.wantRuns)
			}
		})
	}
}

func TestFetchRejectsBadURL(t *testing.T) {
	m := New("", &process.Recorder{}, nil)
	_, err := m.Fetch(context.Background(), "ftp://example.com/conda.sh", t.TempDir())
	if !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("Fetch() error = %v, want CONFIGURATION_ERROR", err)
	}
}

func TestRootPrefix(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin", "conda")
	if err := os.MkdirAll(filepath.Dir(bin), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.EvalSymlinks(root)

	got, err := RootPrefix(bin)
	if err != nil {
		t.Fatalf("RootPrefix() error: %v", err)
	}
	if got != want {
		t.Errorf("RootPrefix(%q) = %q, want %q", bin, got, want)
	}

	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(name string) (string, error) {
		if name != "conda" {
			t.Errorf("lookPath(%q)", name)
		}
		return bin, nil
	}
	got, err = RootPrefix("conda")
	if err != nil {
		t.Fatalf("RootPrefix(conda) error: %v", err)
	}
	if got != want {
		t.Errorf("RootPrefix(conda) = %q, want %q", got, want)
	}

	lookPath = func(string) (string, error) { return "", os.ErrNotExist }
	if _, err := RootPrefix("conda"); !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("RootPrefix() with missing binary error = %v, want CONFIGURATION_ERROR", err)
	}
}
