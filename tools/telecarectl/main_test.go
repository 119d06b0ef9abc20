package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/repromitra/telehealth/libs/pseudonym"
	"github.com/spf13/viper"
)

func run(t *testing.T, v *viper.Viper, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(v)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPseudonymCommand(t *testing.T) {
	out, err := run(t, viper.New(), "pseudonym", "-n", "3")
	if err != nil {
		t.Fatalf("pseudonym: %v", err)
	}
	lines := strings.Fields(out)
	if len(lines) != 3 {
		t.Fatalf("expected 3 pseudonyms, got %q", out)
	}
	for _, l := range lines {
		if !pseudonym.Valid(l) {
			t.Fatalf("invalid pseudonym %q", l)
		}
	}
	if _, err := run(t, viper.New(), "pseudonym", "-n", "0"); err == nil {
		t.Fatalf("expected error for zero count")
	}
}

func TestDatabaseURLRequired(t *testing.T) {
	t.Setenv("TELECARE_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	_, err := run(t, viper.New(), "migrate", "status")
	if err == nil || !strings.Contains(err.Error(), "database url is required") {
		t.Fatalf("expected missing database url error, got %v", err)
	}
}

func TestDatabaseURLFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TELECARE_DATABASE_URL", "postgres://telecare@localhost/telecare")
	v := viper.New()
	newRootCmd(v)
	if got := v.GetString("database-url"); got != "postgres://telecare@localhost/telecare" {
		t.Fatalf("unexpected database url %q", got)
	}
}

func TestLoadDoctors(t *testing.T) {
	seeds, err := loadDoctors(bytes.NewReader(sampleDoctors))
	if err != nil {
		t.Fatalf("sample set: %v", err)
	}
	if len(seeds) < 3 || seeds[0].AcceptingPatients == nil || !*seeds[0].AcceptingPatients {
		t.Fatalf("unexpected sample set: %+v", seeds)
	}

	seeds, err = loadDoctors(strings.NewReader(`[{"phone":"+91 90000-00009","name":"Dr. X","specialization":"Pediatrician"}]`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if seeds[0].Phone != "+919000000009" || len(seeds[0].Languages) != 1 || seeds[0].Languages[0] != "English" {
		t.Fatalf("unexpected normalization: %+v", seeds[0])
	}

	bad := []string{
		`[]`,
		`[{"phone":"12345","name":"Dr. X","specialization":"Pediatrician"}]`,
		`[{"phone":"+919000000009","specialization":"Pediatrician"}]`,
		`[{"phone":"+919000000009","name":"Dr. X","specialization":"Pediatrician","unknown":1}]`,
		`[{"phone":"+919000000009","name":"A","specialization":"B"},{"phone":"+919000000009","name":"C","specialization":"D"}]`,
	}
	for _, in := range bad {
		if _, err := loadDoctors(strings.NewReader(in)); err == nil {
			t.Fatalf("expected error for %s", in)
		}
	}
}
