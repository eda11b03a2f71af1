package database

import "testing"

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantLabel   string
		wantErr     bool
	}{
		{
			name:        "valid",
			filename:    "20260301_000000_run_history.up.sql",
			wantVersion: "20260301_000000",
			wantLabel:   "run_history",
		},
		{
			name:     "missing description",
			filename: "20260301_000000.up.sql",
			wantErr:  true,
		},
		{
			name:     "no version",
			filename: "run_history.up.sql",
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, label, err := parseMigrationFilename(tt.filename)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseMigrationFilename() error = %v", err)
			}
			if version != tt.wantVersion || label != tt.wantLabel {
				t.Errorf("got (%q, %q), want (%q, %q)", version, label, tt.wantVersion, tt.wantLabel)
			}
		})
	}
}
