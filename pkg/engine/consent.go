// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"net/http"

	"github.com/ory/fosite"
)

// PlaceholderSubject is the fixed subject attributed to interactive grants.
// The mock has no real authentication, so every human-facing flow is answered
// on behalf of this stand-in resource owner.
const PlaceholderSubject = "Marvin"

// Consent is the outcome of an owner-consent decision for one request.
type Consent struct {
	// Authorized reports whether the grant is approved.
	Authorized bool

	// Subject is the resource owner the grant is attributed to. Only
	// meaningful when Authorized is true.
	Subject string
}

// ConsentPolicy answers the owner-consent decision for a single request.
// Policies are short-lived: one is composed into the engine per request and
// dropped afterwards. Swapping the policy is how denial or interactive
// prompting would be simulated.
type ConsentPolicy interface {
	Decide(r *http.Request, requester fosite.Requester) Consent
}

// ConsentPolicyFunc adapts a function to the ConsentPolicy interface.
type ConsentPolicyFunc func(r *http.Request, requester fosite.Requester) Consent

// Decide implements ConsentPolicy.
func (f ConsentPolicyFunc) Decide(r *http.Request, requester fosite.Requester) Consent {
	return f(r, requester)
}

// GrantAs returns a policy that always authorizes the grant on behalf of a
// fixed subject. Used for the interactive flows, which simulate a logged-in
// human.
func GrantAs(subject string) ConsentPolicy {
	return ConsentPolicyFunc(func(_ *http.Request, _ fosite.Requester) Consent {
		return Consent{Authorized: true, Subject: subject}
	})
}

// GrantClient returns a policy that authorizes the grant in the name of the
// requesting client's own identifier. Used for machine-to-machine flows,
// which must bind the grant to the caller rather than to an end user.
func GrantClient() ConsentPolicy {
	return ConsentPolicyFunc(func(_ *http.Request, requester fosite.Requester) Consent {
		if requester == nil || requester.GetClient() == nil {
			return Consent{}
		}
		return Consent{Authorized: true, Subject: requester.GetClient().GetID()}
	})
}

// Deny returns a policy that refuses every grant.
func Deny() ConsentPolicy {
	return ConsentPolicyFunc(func(_ *http.Request, _ fosite.Requester) Consent {
		return Consent{}
	})
}
