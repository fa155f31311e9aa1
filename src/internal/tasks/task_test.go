package tasks

import (
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"watchlist", Task{Name: "nightly", CronExpression: "0 0 2 * * *", Kind: KindWatchlistReport}, false},
		{"watchlist json", Task{Name: "nightly", CronExpression: "0 0 2 * * *", Kind: KindWatchlistReport, Format: "json"}, false},
		{"bad format", Task{Name: "nightly", CronExpression: "0 0 2 * * *", Kind: KindWatchlistReport, Format: "docx"}, true},
		{"script", Task{Name: "ping", CronExpression: "@hourly", Kind: KindScript, Skill: "chemistry-query", Script: "query_pubchem.py"}, false},
		{"script without skill", Task{Name: "ping", CronExpression: "@hourly", Kind: KindScript, Script: "x.py"}, true},
		{"no name", Task{CronExpression: "@hourly", Kind: KindScript}, true},
		{"no schedule", Task{Name: "x", Kind: KindWatchlistReport}, true},
		{"unknown kind", Task{Name: "x", CronExpression: "@hourly", Kind: "prompt"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
