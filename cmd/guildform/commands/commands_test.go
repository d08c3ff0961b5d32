package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/config"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
)

const testGuild = "111111111111111111"

const serverYAML = `
version: "1.0"
server:
  name: Test Guild
roles:
  - name: Mods
    color: "#FF0000"
    permissions: [KICK_MEMBERS]
channels:
  - name: general
    topic: Say hi
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// fakeGuild serves an empty guild: only @everyone, no channels.
func fakeGuild(t *testing.T) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected write %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch r.URL.Path {
		case "/guilds/" + testGuild:
			_, _ = io.WriteString(w, `{"id":"`+testGuild+`","name":"Test Guild"}`)
		case "/guilds/" + testGuild + "/roles":
			_, _ = io.WriteString(w, `[{"id":"`+testGuild+`","name":"@everyone","permissions":"1024"}]`)
		case "/guilds/" + testGuild + "/channels":
			_, _ = io.WriteString(w, `[]`)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	t.Setenv("DISCORD_API_BASE", server.URL)
	t.Setenv("DISCORD_BOT_TOKEN", "secret")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	cmd, a := newRootCommand("test", "none", "today")
	defer a.shutdown()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := runCLI(t, "validate", writeConfig(t, serverYAML))
	if err != nil {
		t.Fatalf("validate error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 roles, 0 categories, 1 channels") {
		t.Errorf("missing summary:\n%s", out)
	}
}

func TestValidateCommandReportsErrors(t *testing.T) {
	bad := `
version: "1.0"
roles:
  - name: Mods
    permissions: [NOT_A_PERMISSION]
`
	out, err := runCLI(t, "validate", writeConfig(t, bad))
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if !engine.IsValidation(err) {
		t.Errorf("expected a validation error, got %v", err)
	}
	if !strings.Contains(out, "NOT_A_PERMISSION") {
		t.Errorf("findings not printed:\n%s", out)
	}
}

func TestValidateCommandCustomSchema(t *testing.T) {
	dir := t.TempDir()
	schema := filepath.Join(dir, "strict.cue")
	if err := os.WriteFile(schema, []byte(`#ServerConfig: {
	version: "1.0"
	roles?: [...{name: =~"^team-"}]
}
`), 0o600); err != nil {
		t.Fatal(err)
	}
	doc := filepath.Join(dir, "guild.cue")
	if err := os.WriteFile(doc, []byte(`version: "1.0"
roles: [{name: "Mods"}]
`), 0o600); err != nil {
		t.Fatal(err)
	}

	if out, err := runCLI(t, "validate", doc); err != nil {
		t.Fatalf("builtin schema should accept the config: %v\n%s", err, out)
	}
	if _, err := runCLI(t, "validate", "--schema", schema, doc); !engine.IsValidation(err) {
		t.Errorf("expected the custom schema to reject the role name, got %v", err)
	}
}

func TestDiffCommandJSON(t *testing.T) {
	fakeGuild(t)
	out, err := runCLI(t, "diff", "--json", "-g", testGuild, writeConfig(t, serverYAML))
	if err != nil {
		t.Fatalf("diff error = %v\n%s", err, out)
	}

	var got struct {
		Diff   engine.ServerDiff `json:"diff"`
		Policy struct {
			Allowed bool `json:"allowed"`
		} `json:"policy"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Diff.GuildID != testGuild || !got.Diff.HasChanges {
		t.Errorf("unexpected diff header: %+v", got.Diff)
	}
	if got.Diff.Summary.Create != 2 {
		t.Errorf("expected a role and a channel to create, got %+v", got.Diff.Summary)
	}
	if !got.Policy.Allowed {
		t.Error("a create-only plan should pass the built-in policies")
	}
}

func TestDiffCommandExitCode(t *testing.T) {
	fakeGuild(t)
	_, err := runCLI(t, "diff", "--exit-code", "-g", testGuild, writeConfig(t, serverYAML))
	if ExitCode(err) != 2 || !IsSilent(err) {
		t.Errorf("expected silent exit status 2, got %v", err)
	}
}

func TestApplyDryRunRecordsHistory(t *testing.T) {
	fakeGuild(t)
	db := filepath.Join(t.TempDir(), "history.db")
	path := writeConfig(t, serverYAML)

	out, err := runCLI(t, "apply", "--dry-run", "--db", db, "-g", testGuild, path)
	if err != nil {
		t.Fatalf("apply error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Dry run:") || !strings.Contains(out, "2 succeeded") {
		t.Errorf("unexpected apply output:\n%s", out)
	}

	out, err = runCLI(t, "history", "--db", db)
	if err != nil {
		t.Fatalf("history error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "succeeded (dry run)") || !strings.Contains(out, testGuild) {
		t.Errorf("run not listed:\n%s", out)
	}
}

func TestApplyNoChanges(t *testing.T) {
	fakeGuild(t)
	empty := "version: \"1.0\"\n"
	out, err := runCLI(t, "apply", "--no-history", "-g", testGuild, writeConfig(t, empty))
	if err != nil {
		t.Fatalf("apply error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "No changes") {
		t.Errorf("expected no-changes message:\n%s", out)
	}
}

func TestApplyRequiresTerminalForConfirmation(t *testing.T) {
	fakeGuild(t)
	_, err := runCLI(t, "apply", "--no-history", "-g", testGuild, writeConfig(t, serverYAML))
	if !errors.Is(err, errNotInteractive) {
		t.Errorf("expected errNotInteractive, got %v", err)
	}
}

func TestHistoryEmpty(t *testing.T) {
	out, err := runCLI(t, "history", "--db", filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(out, "No runs recorded.") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestHistoryRejectsUnknownStatus(t *testing.T) {
	_, err := runCLI(t, "history", "--db", filepath.Join(t.TempDir(), "h.db"), "--status", "bogus")
	if !engine.IsValidation(err) {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestResolveGuildID(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		cfgID   string
		envID   string
		want    string
		wantErr bool
	}{
		{name: "flag wins", flag: "1", cfgID: "2", envID: "3", want: "1"},
		{name: "config before env", cfgID: "2", envID: "3", want: "2"},
		{name: "env fallback", envID: "3", want: "3"},
		{name: "none", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &app{guildID: tt.flag, settings: &config.Settings{GuildID: tt.envID}}
			cfg := &engine.ServerConfig{Server: engine.ServerInfo{ID: tt.cfgID}}
			got, err := a.resolveGuildID(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveGuildID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveGuildID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDiffFlags(t *testing.T) {
	f := diffFlags{maxDeletes: 7}
	if opts := f.options(); !opts.ManagedOnly || !opts.IncludePermissions {
		t.Errorf("defaults should be managed-only with permissions, got %+v", opts)
	}

	f.allResources, f.noPerms = true, true
	if opts := f.options(); opts.ManagedOnly || opts.IncludePermissions {
		t.Errorf("--all --no-permissions not applied: %+v", opts)
	}

	pctx := f.policyContext("apply", true)
	if pctx.Operation != "apply" || !pctx.DryRun || pctx.Params["max_deletes"] != 7 {
		t.Errorf("unexpected policy context: %+v", pctx)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("boom"), 1},
		{&exitError{msg: "denied"}, 1},
		{&exitError{msg: "changes pending", code: 2}, 2},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
