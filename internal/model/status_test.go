package model

import "testing"

func TestMessageStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to MessageStatus
		want     bool
	}{
		{StatusDraft, StatusApproved, true},
		{StatusDraft, StatusSent, false},
		{StatusApproved, StatusSent, true},
		{StatusApproved, StatusFailed, true},
		{StatusSent, StatusResponded, true},
		{StatusSent, StatusDraft, false},
		{StatusResponded, StatusBooked, true},
		{StatusBooked, StatusResponded, true},
		{StatusFailed, StatusApproved, false},
		{StatusFailed, StatusDraft, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestOutreachStatusMoreAdvancedThan(t *testing.T) {
	if !OutreachBooked.MoreAdvancedThan(OutreachResponded) {
		t.Error("Booked should outrank Responded")
	}
	if !OutreachResponded.MoreAdvancedThan(OutreachEmailSent) {
		t.Error("Responded should outrank Email Sent")
	}
	if OutreachEmailSent.MoreAdvancedThan(OutreachEmailSent) {
		t.Error("a status should not outrank itself")
	}
	if OutreachNotContacted.MoreAdvancedThan(OutreachEmailSent) {
		t.Error("Not Contacted should not outrank Email Sent")
	}
}
