package payment

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "checkout.session.completed", want: OutcomePaymentSuccess},
		{in: "invoice.paid", want: OutcomePaymentSuccess},
		{in: "payment.succeeded", want: OutcomePaymentSuccess},
		{in: "subscription.canceled", want: OutcomePaymentTerminated},
		{in: "charge.refunded", want: OutcomePaymentTerminated},
		{in: " Invoice.Paid ", want: OutcomePaymentSuccess},
		{in: "customer.updated", want: OutcomeIgnored},
		{in: "", want: OutcomeIgnored},
	}

	for _, tt := range tests {
		if got := Classify(tt.in); got != tt.want {
			t.Fatalf("Classify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveListingRef_PrefersExplicitID(t *testing.T) {
	ev := &Event{}
	ev.Data.ListingID = "uuid-1"
	ev.Data.CustomerEmail = "owner@example.com"

	ref, ok := ResolveListingRef(ev)
	if !ok {
		t.Fatalf("expected a reference")
	}
	if ref.ListingUUID != "uuid-1" || ref.Email != "" {
		t.Fatalf("expected explicit id to win, got %+v", ref)
	}
}

func TestResolveListingRef_FallbackChain(t *testing.T) {
	ev := &Event{}
	ev.Data.Metadata = map[string]string{"listing_id": "uuid-meta"}
	if ref, ok := ResolveListingRef(ev); !ok || ref.ListingUUID != "uuid-meta" {
		t.Fatalf("expected metadata listing id, got %+v", ref)
	}

	ev = &Event{}
	ev.Data.ClientReferenceID = "uuid-ref"
	if ref, ok := ResolveListingRef(ev); !ok || ref.ListingUUID != "uuid-ref" {
		t.Fatalf("expected client reference id, got %+v", ref)
	}

	ev = &Event{}
	ev.Data.CustomerEmail = "owner@example.com"
	if ref, ok := ResolveListingRef(ev); !ok || ref.Email != "owner@example.com" {
		t.Fatalf("expected email fallback, got %+v", ref)
	}

	ev = &Event{}
	if _, ok := ResolveListingRef(ev); ok {
		t.Fatalf("expected no reference for empty event")
	}
}

func TestParseEvent(t *testing.T) {
	raw := []byte(`{
		"id": "evt_42",
		"type": "checkout.session.completed",
		"data": {
			"client_reference_id": "uuid-7",
			"customer_email": "owner@example.com",
			"plan": "standard",
			"metadata": { "listing_id": "uuid-7" }
		}
	}`)

	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.ID != "evt_42" || ev.Type != "checkout.session.completed" {
		t.Fatalf("unexpected envelope: %+v", ev)
	}
	if PlanRef(ev) != "standard" {
		t.Fatalf("expected plan ref standard, got %q", PlanRef(ev))
	}

	if _, err := ParseEvent([]byte("{not json")); err == nil {
		t.Fatalf("expected parse error for malformed body")
	}
}
