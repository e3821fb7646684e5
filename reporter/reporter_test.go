package reporter

import "testing"

func TestMessagesOrderedByPriority(t *testing.T) {
	r := &MemoryReporter{}
	r.AddMessage("low one", LowPriority, false)
	r.AddMessage("high one", HighPriority, true)
	r.AddMessage("medium one", MediumPriority, false)
	r.AddMessage("low two", LowPriority, false)

	got := r.Messages()
	want := []string{"high one", "medium one", "low one", "low two"}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i, m := range got {
		if m.Text != want[i] {
			t.Errorf("position %d: got %q, want %q", i, m.Text, want[i])
		}
	}
}
