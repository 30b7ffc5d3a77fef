package domain

import "testing"

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIdempotencyRecordReplayable(t *testing.T) {
	if (IdempotencyRecord{Status: IdempotencyStatusProcessing}).Replayable() {
		t.Fatal("processing record must not be replayable")
	}
	if (IdempotencyRecord{Status: IdempotencyStatusDone}).Replayable() {
		t.Fatal("record without stored status must not be replayable")
	}
	if !(IdempotencyRecord{Status: IdempotencyStatusFailed, HTTPStatus: 409}).Replayable() {
		t.Fatal("failed record with stored response must be replayable")
	}
}
