// Package orchestrator implements the core Provide-and-Register state
// machine: it sequences the PnR parser, identifier extractor, resolver
// fan-out, the conditional identity feed, and the enrichment rewriter,
// aggregating partial failures into a single XDS-conformant response.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/wardle/xds-mediator/audit"
	"github.com/wardle/xds-mediator/dsub"
	"github.com/wardle/xds-mediator/identifiers"
	"github.com/wardle/xds-mediator/identityfeed"
	"github.com/wardle/xds-mediator/pnr"
	"github.com/wardle/xds-mediator/resolver"
)

// DefaultTransactionTimeout bounds an entire PnR transaction end to end
// when Config leaves it unset.
const DefaultTransactionTimeout = 5 * time.Minute

// Config holds the orchestration policy for one Engine.
type Config struct {
	ProvidersEnrich      bool
	FacilitiesEnrich     bool
	PatientsAutoRegister bool

	// TargetAuthorities overrides the per-category enterprise authority a
	// resolver resolves into; categories absent from the map fall back to
	// the package defaults (ECID/EPID/ELID) via resolver.TargetAuthority.
	TargetAuthorities map[pnr.Category]identifiers.AssigningAuthority

	// PerCallTimeout bounds each round of resolve calls; zero means
	// resolver.DefaultCallTimeout.
	PerCallTimeout time.Duration

	// TransactionTimeout bounds the whole transaction; zero means
	// DefaultTransactionTimeout.
	TransactionTimeout time.Duration
}

func (c Config) transactionTimeout() time.Duration {
	if c.TransactionTimeout > 0 {
		return c.TransactionTimeout
	}
	return DefaultTransactionTimeout
}

func (c Config) perCallTimeout() time.Duration {
	if c.PerCallTimeout > 0 {
		return c.PerCallTimeout
	}
	return resolver.DefaultCallTimeout
}

// categoryEnabled reports whether category c's resolver fan-out and
// rewrite should run at all. Patient resolution has no disable flag - a
// PnR transaction always carries a resolvable patient.
func (c Config) categoryEnabled(cat pnr.Category) bool {
	switch cat {
	case pnr.Provider:
		return c.ProvidersEnrich
	case pnr.Facility:
		return c.FacilitiesEnrich
	default:
		return true
	}
}

// Engine runs the orchestration state machine for one PnR transaction at a
// time; it holds no per-transaction state itself, so a single Engine value
// is safe to reuse concurrently across transactions.
type Engine struct {
	// Resolvers supplies the resolver for each enabled category.
	// Process fails the transaction with XDSRegistryError if a category
	// with pending occurrences has no entry here.
	Resolvers map[pnr.Category]resolver.Resolver

	// IdentityFeed is the registration client invoked on patient miss when
	// PatientsAutoRegister is set. May be nil if auto-register is never
	// enabled.
	IdentityFeed identityfeed.Client

	// DSUB and Audit are the notification and audit collaborators. Both
	// default to a log-based implementation when left nil.
	DSUB  dsub.Publisher
	Audit audit.Emitter

	Config Config
}

// Response is the terminal outcome of a transaction: either the enriched
// envelope (Completed) or a RegistryResponse failure body (Failed). HTTP
// status is 200 in both cases per XDS convention - a hosting mediator
// wraps Body in a FinishRequest unconditionally.
type Response struct {
	CorrelationID string
	Failed        bool
	Body          []byte
}

func (e *Engine) dsubPublisher() dsub.Publisher {
	if e.DSUB != nil {
		return e.DSUB
	}
	return dsub.LogPublisher{}
}

func (e *Engine) auditEmitter() audit.Emitter {
	if e.Audit != nil {
		return e.Audit
	}
	return audit.LogEmitter{}
}

// Process parses envelopeBytes and runs it through the full parse,
// extract, resolve, identity-feed and enrich pipeline. It never returns a
// Go error for any condition modelled as an orchestration outcome - those
// always come back as a Response, Failed or not. The error return is
// reserved for conditions the state machine itself cannot represent (a
// nil Engine, for example).
func (e *Engine) Process(ctx context.Context, envelopeBytes []byte, attachments identityfeed.Attachments) (*Response, error) {
	if e == nil {
		return nil, fmt.Errorf("orchestrator: Process called on a nil Engine")
	}
	correlationID := uuid.New().String()

	env, err := pnr.ParseEnvelope(envelopeBytes)
	if err != nil {
		return e.fail(correlationID, genericError(fmt.Sprintf("malformed PnR envelope: %s", safeMessage(err)))), nil
	}
	return e.ProcessEnvelope(ctx, correlationID, env, attachments)
}

// ProcessEnvelope runs the state machine from an already-parsed envelope.
// A caller that already owns a parsed DOM - typically a pre-parse stage
// upstream of this engine - can skip re-parsing and call straight in with
// its own correlation id.
func (e *Engine) ProcessEnvelope(ctx context.Context, correlationID string, env *pnr.Envelope, attachments identityfeed.Attachments) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Config.transactionTimeout())
	defer cancel()

	extraction, err := pnr.Extract(env)
	if err != nil {
		return e.fail(correlationID, genericError(fmt.Sprintf("malformed PnR envelope: %s", safeMessage(err)))), nil
	}
	for _, w := range extraction.Warnings {
		log.Printf("correlationId=%s extraction warning: %s", correlationID, w)
	}

	rmap := newResolutionMap()
	for _, cat := range []pnr.Category{pnr.Patient, pnr.Provider, pnr.Facility} {
		if !e.Config.categoryEnabled(cat) {
			continue
		}
		occs := extraction.ByCategory(cat)
		if len(occs) == 0 {
			continue
		}
		r, ok := e.Resolvers[cat]
		if !ok {
			return e.fail(correlationID, genericError(fmt.Sprintf("no resolver configured for %s category", cat))), nil
		}

		if cat == pnr.Patient {
			e.auditEmitter().Emit(audit.Event{Type: audit.PIXRequest, CorrelationID: correlationID, PatientIDs: identifierValues(occs), Outcome: "attempted"})
		}

		target := resolver.TargetAuthority(cat, e.Config.TargetAuthorities)
		results, timedOut := e.resolveRound(ctx, r, cat, occs, target)
		rmap.record(occs, results)
		if timedOut {
			return e.fail(correlationID, timeoutError(fmt.Sprintf("transaction deadline exceeded resolving %s identifiers", cat))), nil
		}
	}

	return e.triage(ctx, correlationID, env, extraction, rmap, attachments)
}

// resolveRound runs one coalesced fan-out of resolve calls bounded by the
// per-call timeout, itself bounded by whatever remains of the transaction
// deadline (a child context can never outlive its parent).
func (e *Engine) resolveRound(ctx context.Context, r resolver.Resolver, cat pnr.Category, occs []*pnr.IdentifierOccurrence, target identifiers.AssigningAuthority) (map[string]resolver.Result, bool) {
	callCtx, cancel := context.WithTimeout(ctx, e.Config.perCallTimeout())
	defer cancel()
	results := resolver.ResolveMany(callCtx, r, cat, occs, target)
	return results, ctx.Err() != nil
}

// triage implements the Triage state: provider/facility misses are always
// folded into the aggregated failure (subject to the category being
// enabled at all); a patient miss either routes to IdentityFeeding or,
// with auto-register off, fails immediately alongside everything else
// already aggregated - partial failure aggregation means a patient miss
// never short-circuits the provider/facility resolves that already ran to
// completion.
func (e *Engine) triage(ctx context.Context, correlationID string, env *pnr.Envelope, extraction *pnr.Extraction, rmap resolutionMap, attachments identityfeed.Attachments) (*Response, error) {
	var errs []RegistryError

	for _, res := range rmap.unresolved(pnr.Provider) {
		if res.result.Status == resolver.Error {
			errs = append(errs, transportError(pnr.Provider, res.occurrence, res.result.Err))
		} else {
			errs = append(errs, unresolvedProviderError(res.occurrence))
		}
	}
	for _, res := range rmap.unresolved(pnr.Facility) {
		if res.result.Status == resolver.Error {
			errs = append(errs, transportError(pnr.Facility, res.occurrence, res.result.Err))
		} else {
			errs = append(errs, unresolvedFacilityError(res.occurrence))
		}
	}

	var patientNotFound []*resolution
	for _, res := range rmap.unresolved(pnr.Patient) {
		if res.result.Status == resolver.Error {
			errs = append(errs, transportError(pnr.Patient, res.occurrence, res.result.Err))
			continue
		}
		patientNotFound = append(patientNotFound, res)
	}

	if len(patientNotFound) > 0 {
		if !e.Config.PatientsAutoRegister {
			for _, res := range patientNotFound {
				errs = append(errs, unresolvedPatientError(res.occurrence))
			}
			return e.fail(correlationID, errs...), nil
		}
		return e.identityFeed(ctx, correlationID, env, extraction, rmap, attachments, errs, patientNotFound)
	}

	if len(errs) > 0 {
		return e.fail(correlationID, errs...), nil
	}

	if err := checkSinglePatientInvariant(rmap); err != nil {
		return e.fail(correlationID, genericError(err.Error())), nil
	}
	return e.enrich(correlationID, env, rmap)
}

// identityFeed implements the IdentityFeeding -> ReResolving transitions.
// It is invoked at most once per transaction regardless of how many
// distinct patient identifiers missed: every missed identifier is batched
// into a single registration call.
func (e *Engine) identityFeed(ctx context.Context, correlationID string, env *pnr.Envelope, extraction *pnr.Extraction, rmap resolutionMap, attachments identityfeed.Attachments, pendingErrs []RegistryError, patientMisses []*resolution) (*Response, error) {
	if e.IdentityFeed == nil {
		return e.fail(correlationID, append(pendingErrs, genericError("auto-register enabled but no identity feed client configured"))...), nil
	}

	missedOccs := toOccurrences(patientMisses)
	ids := make([]identifiers.Identifier, 0, len(missedOccs))
	for _, occ := range missedOccs {
		ids = append(ids, occ.Identifier)
	}
	demographics, _ := identityfeed.Extract(env, attachments)

	e.auditEmitter().Emit(audit.Event{Type: audit.PIXIdentityFeed, CorrelationID: correlationID, PatientIDs: identifierValues(missedOccs), Outcome: "attempted"})
	callCtx, cancel := context.WithTimeout(ctx, e.Config.perCallTimeout())
	result := e.IdentityFeed.Register(callCtx, ids, demographics)
	cancel()

	if result.Outcome != identityfeed.Success {
		e.auditEmitter().Emit(audit.Event{Type: audit.PIXIdentityFeed, CorrelationID: correlationID, PatientIDs: identifierValues(missedOccs), Outcome: "failure"})
		return e.fail(correlationID, append(pendingErrs, genericError(fmt.Sprintf("identity feed registration failed: %s", safeMessage(result.Err))))...), nil
	}
	e.auditEmitter().Emit(audit.Event{Type: audit.PIXIdentityFeed, CorrelationID: correlationID, PatientIDs: identifierValues(missedOccs), Outcome: "success"})

	// ReResolving: reissue patient resolve for the previously-missed keys
	// once. A resolver is guaranteed present here - triage could not have
	// reached a patient miss otherwise.
	r := e.Resolvers[pnr.Patient]
	target := resolver.TargetAuthority(pnr.Patient, e.Config.TargetAuthorities)
	results, timedOut := e.resolveRound(ctx, r, pnr.Patient, missedOccs, target)
	rmap.record(missedOccs, results)
	if timedOut {
		return e.fail(correlationID, append(pendingErrs, timeoutError("transaction deadline exceeded re-resolving patient identifiers"))...), nil
	}

	for _, res := range rmap.unresolved(pnr.Patient) {
		if res.result.Status == resolver.Error {
			pendingErrs = append(pendingErrs, transportError(pnr.Patient, res.occurrence, res.result.Err))
			continue
		}
		pendingErrs = append(pendingErrs, unresolvedPatientError(res.occurrence))
	}
	if len(pendingErrs) > 0 {
		return e.fail(correlationID, pendingErrs...), nil
	}

	if err := checkSinglePatientInvariant(rmap); err != nil {
		return e.fail(correlationID, genericError(err.Error())), nil
	}
	return e.enrich(correlationID, env, rmap)
}

// checkSinglePatientInvariant enforces that a PnR carrying more than one
// distinct patient identifier that resolve to different enterprise
// identifiers is an invariant violation, not a silently accepted
// ambiguity.
func checkSinglePatientInvariant(rmap resolutionMap) error {
	var ecid *identifiers.Identifier
	for _, res := range rmap.byCategory(pnr.Patient) {
		if res.result.Status != resolver.Resolved {
			continue
		}
		if ecid == nil {
			id := res.result.Identifier
			ecid = &id
			continue
		}
		if !ecid.Equal(res.result.Identifier) {
			return fmt.Errorf("PnR carries distinct patient identifiers resolving to different enterprise identifiers (%s and %s)", ecid, res.result.Identifier)
		}
	}
	return nil
}

// enrich implements the Enriching -> Completed transition: rewrite every
// resolved occurrence in place and serialize the DOM back out.
func (e *Engine) enrich(correlationID string, env *pnr.Envelope, rmap resolutionMap) (*Response, error) {
	for _, res := range rmap {
		if res.result.Status == resolver.Resolved {
			pnr.Rewrite(res.occurrence, res.result.Identifier)
		}
	}
	body, err := env.Bytes()
	if err != nil {
		return e.fail(correlationID, genericError(fmt.Sprintf("serializing enriched envelope: %s", safeMessage(err)))), nil
	}

	e.auditEmitter().Emit(audit.Event{Type: audit.XDSRegister, CorrelationID: correlationID, Outcome: "success"})
	fid := facilityID(rmap)
	for _, doc := range env.DocumentEntries() {
		e.dsubPublisher().Publish(dsub.Event{
			CorrelationID: correlationID,
			DocumentID:    doc.SelectAttrValue("id", ""),
			FacilityID:    fid,
		})
	}

	return &Response{CorrelationID: correlationID, Body: body}, nil
}

func (e *Engine) fail(correlationID string, errs ...RegistryError) *Response {
	return &Response{CorrelationID: correlationID, Failed: true, Body: BuildFailureResponse(errs)}
}

func identifierValues(occs []*pnr.IdentifierOccurrence) []string {
	out := make([]string, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.Identifier.Value)
	}
	return out
}

func toOccurrences(resolutions []*resolution) []*pnr.IdentifierOccurrence {
	out := make([]*pnr.IdentifierOccurrence, 0, len(resolutions))
	for _, r := range resolutions {
		out = append(out, r.occurrence)
	}
	return out
}

func facilityID(rmap resolutionMap) string {
	for _, res := range rmap.byCategory(pnr.Facility) {
		if res.result.Status == resolver.Resolved {
			return res.result.Identifier.Value
		}
	}
	return ""
}
