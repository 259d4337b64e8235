package lottery

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		raw  string
		want Outcome
	}{
		{"execution reverted: Insufficient fee value", OutcomeInsufficientValue},
		{"execution reverted: value not enough for randomness", OutcomeInsufficientValue},
		{"transaction underpriced", OutcomeInsufficientValue},
		{"execution reverted: Time interval not passed", OutcomeTimingNotMet},
		{"execution reverted: Buffer period not elapsed", OutcomeTimingNotMet},
		{"execution reverted: Draw time not reached", OutcomeTimingNotMet},
		{"execution reverted: too early to initiate", OutcomeTimingNotMet},
		{"execution reverted: Draw already initiated", OutcomeAlreadyDone},
		{"execution reverted: Randomness already set", OutcomeAlreadyDone},
		{"execution reverted: Random value not available yet", OutcomeNotYetAvailable},
		{"execution reverted: prevrandao not ready", OutcomeNotYetAvailable},
		{"execution reverted: some brand new reason", OutcomeUnclassified},
		{"", OutcomeUnclassified},
	}

	for _, tc := range cases {
		if got := Classify(tc.raw); got != tc.want {
			t.Fatalf("Classify(%q): got %v want %v", tc.raw, got, tc.want)
		}
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	if got := Classify("EXECUTION REVERTED: DRAW TIME NOT REACHED"); got != OutcomeTimingNotMet {
		t.Fatalf("Classify uppercase: got %v want %v", got, OutcomeTimingNotMet)
	}
}

// When a string matches more than one family, the first family in match
// order wins.
func TestClassify_OrderIsStable(t *testing.T) {
	if got := Classify("insufficient value, draw already initiated"); got != OutcomeInsufficientValue {
		t.Fatalf("Classify mixed: got %v want %v", got, OutcomeInsufficientValue)
	}
}

func TestOutcomeString(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeAccepted:          "accepted",
		OutcomeInsufficientValue: "insufficient_value",
		OutcomeTimingNotMet:      "timing_not_met",
		OutcomeAlreadyDone:       "already_done",
		OutcomeNotYetAvailable:   "not_yet_available",
		OutcomeUnclassified:      "unclassified",
	}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Fatalf("Outcome(%d).String(): got %q want %q", o, got, want)
		}
	}
}
