package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haulbid/haulbid-backend/pkg/migrate"
)

func TestAuctionCoreMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_auction_core.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no auction core migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS loads",
		"CREATE TABLE IF NOT EXISTS rate_submissions",
		"CREATE TABLE IF NOT EXISTS assignments",
		"UNIQUE (load_id, carrier_id, attempt_number)",
		"CONSTRAINT ux_assignments_load_carrier UNIQUE (load_id, carrier_id)",
		"CHECK (bid_end_time > bid_start_time)",
		"DROP TABLE IF EXISTS loads",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir failed: %v", err)
	}
}
