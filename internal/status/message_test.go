package status

import "testing"

func TestCanAdvanceForward(t *testing.T) {
	tests := []struct {
		from, to Message
		want     bool
	}{
		{Sending, Processing, true},
		{Sending, Streaming, true},
		{Sending, Synced, true},
		{Processing, Streaming, true},
		{Processing, Synced, true},
		{Streaming, Synced, true},
		{WaitingForInternet, Processing, true},

		// Backward writes are discarded.
		{Synced, Streaming, false},
		{Synced, Sending, false},
		{Streaming, Processing, false},
		{Processing, Sending, false},
		{Synced, Synced, false},
		{Streaming, Streaming, false},

		// The offline side branch toggles both ways.
		{Sending, WaitingForInternet, true},
		{WaitingForInternet, Sending, true},

		// But never out of a later state.
		{Processing, WaitingForInternet, false},
		{Synced, WaitingForInternet, false},
	}
	for _, tt := range tests {
		if got := CanAdvance(tt.from, tt.to); got != tt.want {
			t.Errorf("CanAdvance(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanAdvanceUnknownStatus(t *testing.T) {
	if CanAdvance("bogus", Synced) {
		t.Error("unknown from-status must not advance")
	}
	if CanAdvance(Sending, "bogus") {
		t.Error("unknown to-status must not advance")
	}
}

func TestMerge(t *testing.T) {
	if got := Merge(Streaming, Synced); got != Synced {
		t.Errorf("Merge(streaming, synced) = %s, want synced", got)
	}
	if got := Merge(Synced, Streaming); got != Synced {
		t.Errorf("Merge(synced, streaming) = %s, want synced (no regression)", got)
	}
	if got := Merge(Sending, Sending); got != Sending {
		t.Errorf("Merge(sending, sending) = %s, want sending", got)
	}
}

// TestStatusMonotonicity drives every pairwise interleaving of a set of
// status writes through Merge and checks the result is never earlier in the
// lifecycle than any status already observed.
func TestStatusMonotonicity(t *testing.T) {
	writes := []Message{Processing, Sending, Streaming, WaitingForInternet, Synced, Sending}
	current := Sending
	highest := Rank(current)
	for _, w := range writes {
		current = Merge(current, w)
		if Rank(current) < highest {
			t.Fatalf("status regressed to %s (rank %d) after observing rank %d", current, Rank(current), highest)
		}
		if Rank(current) > highest {
			highest = Rank(current)
		}
	}
	if current != Synced {
		t.Errorf("final status = %s, want synced", current)
	}
}
