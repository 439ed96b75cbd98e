package postgres

import "testing"

func TestPendingMigrationFiles(t *testing.T) {
	files, err := getPendingMigrationFiles(map[string]bool{})
	if err != nil {
		t.Fatalf("getPendingMigrationFiles failed: %v", err)
	}
	if len(files) == 0 || files[0] != "001_feature_vectors.sql" {
		t.Fatalf("unexpected migration files %v", files)
	}

	files, err = getPendingMigrationFiles(map[string]bool{"001_feature_vectors.sql": true})
	if err != nil {
		t.Fatalf("getPendingMigrationFiles failed: %v", err)
	}
	for _, f := range files {
		if f == "001_feature_vectors.sql" {
			t.Error("applied migration reported as pending")
		}
	}
}
