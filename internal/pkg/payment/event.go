package payment

import (
	"encoding/json"
	"strings"
)

// Outcome of classifying a provider event.
const (
	OutcomePaymentSuccess    = "payment_success"
	OutcomePaymentTerminated = "payment_terminated"
	OutcomeIgnored           = "ignored"
)

// eventOutcomes maps provider event names to lifecycle transitions.
// Anything absent here is acknowledged and ignored: providers add event
// types over time and unknown-but-harmless events must not turn into
// errors.
var eventOutcomes = map[string]string{
	"checkout.session.completed": OutcomePaymentSuccess,
	"invoice.paid":               OutcomePaymentSuccess,
	"payment.succeeded":          OutcomePaymentSuccess,
	"subscription.canceled":      OutcomePaymentTerminated,
	"charge.refunded":            OutcomePaymentTerminated,
	"payment.refunded":           OutcomePaymentTerminated,
}

// Event is the provider-agnostic shape of an inbound webhook payload.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ListingID         string            `json:"listing_id"`
		ClientReferenceID string            `json:"client_reference_id"`
		CustomerEmail     string            `json:"customer_email"`
		Plan              string            `json:"plan"`
		Metadata          map[string]string `json:"metadata"`
	} `json:"data"`
}

// ParseEvent decodes a raw webhook body. Parsing happens strictly after
// signature verification.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Classify maps an event name to its lifecycle transition.
func Classify(eventType string) string {
	if outcome, ok := eventOutcomes[strings.ToLower(strings.TrimSpace(eventType))]; ok {
		return outcome
	}
	return OutcomeIgnored
}

// ListingRef is the target a payment event points at, either by explicit
// listing identifier or by identity.
type ListingRef struct {
	ListingUUID string
	Email       string
}

// refExtractor pulls one candidate reference out of an event. The
// extractors run in order; the first non-empty result wins. New provider
// event shapes extend this list instead of growing a conditional chain.
type refExtractor struct {
	name    string
	extract func(ev *Event) ListingRef
}

var refExtractors = []refExtractor{
	{name: "data.listing_id", extract: func(ev *Event) ListingRef {
		return ListingRef{ListingUUID: strings.TrimSpace(ev.Data.ListingID)}
	}},
	{name: "metadata.listing_id", extract: func(ev *Event) ListingRef {
		return ListingRef{ListingUUID: strings.TrimSpace(ev.Data.Metadata["listing_id"])}
	}},
	{name: "client_reference_id", extract: func(ev *Event) ListingRef {
		return ListingRef{ListingUUID: strings.TrimSpace(ev.Data.ClientReferenceID)}
	}},
	{name: "customer_email", extract: func(ev *Event) ListingRef {
		return ListingRef{Email: strings.TrimSpace(ev.Data.CustomerEmail)}
	}},
	{name: "metadata.email", extract: func(ev *Event) ListingRef {
		return ListingRef{Email: strings.TrimSpace(ev.Data.Metadata["email"])}
	}},
}

// ResolveListingRef runs the extraction strategies in order and returns
// the first non-empty reference.
func ResolveListingRef(ev *Event) (ListingRef, bool) {
	for _, ex := range refExtractors {
		ref := ex.extract(ev)
		if ref.ListingUUID != "" || ref.Email != "" {
			return ref, true
		}
	}
	return ListingRef{}, false
}

// PlanRef returns the plan identifier carried by the event, if any.
func PlanRef(ev *Event) string {
	if p := strings.TrimSpace(ev.Data.Plan); p != "" {
		return p
	}
	return strings.TrimSpace(ev.Data.Metadata["plan"])
}
