package vars

import (
	"testing"
)

func TestEnvName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"python.interpreter", "PYTHON_INTERPRETER"},
		{"python.version", "PYTHON_VERSION"},
		{"PYPIRC_PATH", "PYPIRC_PATH"},
		{"imageName", "IMAGENAME"},
		{"build-id", "BUILD_ID"},
	}
	for _, c := range cases {
		if got := EnvName(c.in); got != c.want {
			t.Errorf("EnvName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTable_SetGetCaseInsensitive(t *testing.T) {
	tbl := New()
	tbl.Set("PYPIRC_PATH", "/tmp/run/.pypirc")

	if v, ok := tbl.Get("pypirc_path"); !ok || v != "/tmp/run/.pypirc" {
		t.Errorf("expected case-insensitive lookup, got %q, %v", v, ok)
	}

	// Later layers override
	tbl.Set("pypirc_path", "/other/.pypirc")
	if v, _ := tbl.Get("PYPIRC_PATH"); v != "/other/.pypirc" {
		t.Errorf("expected override to win, got %q", v)
	}

	// Name casing from first write is preserved in listings
	names := tbl.Names()
	if len(names) != 1 || names[0] != "PYPIRC_PATH" {
		t.Errorf("expected original casing in Names, got %v", names)
	}
}

func TestTable_Expand(t *testing.T) {
	tbl := New()
	tbl.Set("python.version", "3.7")
	tbl.Set("imageName", "ubuntu-22.04")
	tbl.Set("PYPIRC_PATH", "/run/.pypirc")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "simple macro",
			in:   "python$(python.version)",
			want: "python3.7",
		},
		{
			name: "multiple macros",
			in:   "$(imageName) uses python $(python.version)",
			want: "ubuntu-22.04 uses python 3.7",
		},
		{
			name: "upload command",
			in:   `python -m twine upload --skip-existing -r "openpatchminer" --config-file $(PYPIRC_PATH) dist/*`,
			want: `python -m twine upload --skip-existing -r "openpatchminer" --config-file /run/.pypirc dist/*`,
		},
		{
			name: "unknown macro left verbatim",
			in:   "echo $(missing)",
			want: "echo $(missing)",
		},
		{
			name: "escaped macro",
			in:   "literal $$(python.version)",
			want: "literal $(python.version)",
		},
		{
			name: "unterminated macro",
			in:   "echo $(python.version",
			want: "echo $(python.version",
		},
		{
			name: "bare dollar",
			in:   "cost: $5",
			want: "cost: $5",
		},
		{
			name: "no macros",
			in:   "pip install .",
			want: "pip install .",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tbl.Expand(tt.in); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTable_Layering(t *testing.T) {
	tbl := New()

	// Built-ins first, then pipeline, then leg variables
	tbl.Set(BuiltinPipelineName, "openpatchminer-release")
	tbl.Merge(map[string]string{"python.version": "3.6", "dist.dir": "dist"})
	tbl.Merge(map[string]string{"python.version": "3.7"})

	if v, _ := tbl.Get("python.version"); v != "3.7" {
		t.Errorf("expected leg layer to win, got %q", v)
	}
	if v, _ := tbl.Get("dist.dir"); v != "dist" {
		t.Errorf("expected pipeline layer to survive, got %q", v)
	}
}

func TestTable_SetValue(t *testing.T) {
	tbl := New()
	tbl.SetValue("run.number", int64(42))
	tbl.SetValue("leg.index", 0)

	if v, _ := tbl.Get("run.number"); v != "42" {
		t.Errorf("expected normalized int64, got %q", v)
	}
	if v, _ := tbl.Get("leg.index"); v != "0" {
		t.Errorf("expected normalized int, got %q", v)
	}
}

func TestTable_CloneIsIndependent(t *testing.T) {
	base := New()
	base.Set("a", "1")

	clone := base.Clone()
	clone.Set("a", "2")
	clone.Set("b", "3")

	if v, _ := base.Get("a"); v != "1" {
		t.Errorf("expected base to keep its value, got %q", v)
	}
	if _, ok := base.Get("b"); ok {
		t.Error("expected base to not see clone writes")
	}
}

func TestTable_ExpandMapAndSlice(t *testing.T) {
	tbl := New()
	tbl.Set("workspace.dir", "/src/opm")

	m := tbl.ExpandMap(map[string]string{"WORKDIR": "$(workspace.dir)"})
	if m["WORKDIR"] != "/src/opm" {
		t.Errorf("ExpandMap: got %q", m["WORKDIR"])
	}

	s := tbl.ExpandSlice([]string{"$(workspace.dir)/dist/*"})
	if s[0] != "/src/opm/dist/*" {
		t.Errorf("ExpandSlice: got %q", s[0])
	}
}
