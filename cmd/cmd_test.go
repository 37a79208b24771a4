package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/store"
)

// seed writes a config pointing at a fresh database holding one collection
// with an archived and a workspace item, and returns the config path.
func seed(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	cfgPath := filepath.Join(dir, "dspacekit.yaml")
	if err := os.WriteFile(cfgPath, []byte("database:\n  path: "+dbPath+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	s, err := store.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	col := &content.Collection{Name: "Theses", Handle: "123456789/2"}
	if err := s.CreateCollection(ctx, col); err != nil {
		t.Fatal(err)
	}
	archived := content.NewItem(col.ID)
	archived.Handle = "123456789/5"
	archived.InArchive = true
	archived.AddMetadata("dc.title", "en", "Archived Thesis")
	archived.AddMetadata("dc.contributor.author", "", "Rivera, Alex")
	archived.AddMetadata("dc.date.issued", "", "2023")
	archived.AddMetadata("dc.type", "", "Thesis")
	if err := s.CreateItem(ctx, archived); err != nil {
		t.Fatal(err)
	}
	workspace := content.NewItem(col.ID)
	workspace.AddMetadata("dc.title", "en", "Unfinished Draft")
	if err := s.CreateItem(ctx, workspace); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	exportOutput, exportCollection, exportAll = "", "", false
	exportColumns, exportSeparator, exportPretty = nil, "||", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExportBibTeX(t *testing.T) {
	cfg := seed(t)
	out, err := run(t, "--config", cfg, "export", "bibtex", "--collection", "123456789/2")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "@mastersthesis{rivera2023,") {
		t.Errorf("got %q, want an entry for the archived thesis", out)
	}
	if strings.Contains(out, "Unfinished Draft") {
		t.Errorf("workspace item exported without --all:\n%s", out)
	}
}

func TestExportAllToFile(t *testing.T) {
	cfg := seed(t)
	path := filepath.Join(t.TempDir(), "items.csv")
	if _, err := run(t, "--config", cfg, "export", "csv", "--all", "-o", path, "--columns", "dc.title"); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Archived Thesis", "Unfinished Draft"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("got %q, want it to contain %q", data, want)
		}
	}
}

func TestExportErrors(t *testing.T) {
	cfg := seed(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown format", []string{"export", "marc21"}, `unknown format "marc21"`},
		{"unknown handle", []string{"export", "oai_dc", "--collection", "123456789/99"}, "neither a collection id nor a known handle"},
		{"item handle", []string{"export", "oai_dc", "--collection", "123456789/5"}, "not a collection"},
		{"unknown id", []string{"export", "oai_dc", "--collection", uuid.NewString()}, "no collection with id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"--config", cfg}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want an error containing %q", err, tt.want)
			}
		})
	}
}
