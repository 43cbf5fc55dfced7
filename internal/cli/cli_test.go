package cli

import (
	"testing"
	"time"
)

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("from", "")
	if err != nil || got != nil {
		t.Fatalf("empty flag should yield nil, got %v %v", got, err)
	}

	got, err = parseTimeFlag("from", "2025-02-22")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(time.Date(2025, 2, 22, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %s", got)
	}

	got, err = parseTimeFlag("to", "2025-02-22T14:00:00+02:00")
	if err != nil {
		t.Fatal(err)
	}
	if got.UTC().Hour() != 12 {
		t.Fatalf("unexpected timestamp %s", got)
	}

	if _, err := parseTimeFlag("to", "yesterday"); err == nil {
		t.Fatal("garbage should be rejected")
	}
}

func TestRootRegistersCommands(t *testing.T) {
	want := []string{"run", "preview", "trending", "show", "export", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %q not registered: %v", name, err)
		}
	}
}

func TestLoadEnvFileIgnoresMissingFile(t *testing.T) {
	if err := loadEnvFile(t.TempDir() + "/absent.env"); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}
