package models

import "testing"

var allUploadStates = []UploadState{
	UploadStateWaiting, UploadStatePreparing, UploadStatePrepared,
	UploadStateUploading, UploadStateUploaded, UploadStateFinishing,
	UploadStateFinished,
	UploadStatePreparingError, UploadStatePreparingFail, UploadStateFormatError,
	UploadStateUploadingError, UploadStateUploadingFail,
	UploadStateFinishingError, UploadStateFinishingFail,
	UploadStateModerated, UploadStateDeleted,
}

func TestUploadStateBuckets(t *testing.T) {
	t.Run("every state lands in exactly one bucket", func(t *testing.T) {
		for _, s := range allUploadStates {
			buckets := 0
			if s.IsInFlight() {
				buckets++
			}
			if s.IsResumable() {
				buckets++
			}
			if s.IsImpossible() {
				buckets++
			}
			if s.IsTerminal() {
				buckets++
			}
			if buckets != 1 {
				t.Errorf("state %s is in %d buckets, want exactly 1", s, buckets)
			}
		}
	})

	t.Run("impossible bucket members", func(t *testing.T) {
		want := map[UploadState]bool{
			UploadStatePreparingFail: true,
			UploadStateFormatError:   true,
			UploadStateUploadingFail: true,
			UploadStateFinishingFail: true,
		}
		for _, s := range allUploadStates {
			if s.IsImpossible() != want[s] {
				t.Errorf("IsImpossible(%s) = %t, want %t", s, s.IsImpossible(), want[s])
			}
		}
		if len(ImpossibleStates) != 4 {
			t.Errorf("ImpossibleStates has %d entries, want 4", len(ImpossibleStates))
		}
	})

	t.Run("resumable bucket members", func(t *testing.T) {
		want := map[UploadState]bool{
			UploadStatePreparingError: true,
			UploadStateUploadingError: true,
			UploadStateFinishingError: true,
		}
		for _, s := range allUploadStates {
			if s.IsResumable() != want[s] {
				t.Errorf("IsResumable(%s) = %t, want %t", s, s.IsResumable(), want[s])
			}
		}
		if len(ResumableStates) != 3 {
			t.Errorf("ResumableStates has %d entries, want 3", len(ResumableStates))
		}
	})

	t.Run("in-flight bucket holds the sleep inhibitor", func(t *testing.T) {
		inFlight := 0
		for _, s := range allUploadStates {
			if s.IsInFlight() {
				inFlight++
			}
		}
		if inFlight != 6 {
			t.Errorf("in-flight bucket has %d states, want 6", inFlight)
		}
	})
}
