package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/golevel7/hl7"
	"github.com/dshills/golevel7/mllp"

	"github.com/wardle/xds-mediator/identifiers"
	"github.com/wardle/xds-mediator/pnr"
)

// Hl7Pix resolves patient identifiers against a PIX/PDQ manager over MLLP,
// sending a QBP^Q21 query and reading the identifier list out of the
// RSP^K23 response's repeating PID-3.
type Hl7Pix struct {
	SendingApplication string
	SendingFacility    string
	Addr               string
}

// NewHl7Pix constructs an Hl7Pix resolver dialling addr lazily on each
// call, matching the MLLP client's own lazy-connect behaviour.
func NewHl7Pix(addr, sendingApplication, sendingFacility string) *Hl7Pix {
	return &Hl7Pix{
		SendingApplication: sendingApplication,
		SendingFacility:    sendingFacility,
		Addr:               addr,
	}
}

// Resolve implements Resolver.
func (r *Hl7Pix) Resolve(ctx context.Context, category pnr.Category, id identifiers.Identifier, target identifiers.AssigningAuthority) Result {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	client, err := mllp.NewClient(r.Addr)
	if err != nil {
		return Result{Status: Error, Err: fmt.Errorf("resolver: dialling pix manager: %w", err)}
	}
	defer client.Close()

	query := r.buildQuery(id)
	resp, err := client.Send(ctx, query)
	if err != nil {
		return Result{Status: Error, Err: fmt.Errorf("resolver: pix query failed: %w", err)}
	}

	if !strings.HasPrefix(resp.Type(), "RSP") {
		return Result{Status: Error, Err: fmt.Errorf("resolver: unexpected pix response type %q", resp.Type())}
	}

	values, err := resp.GetAll("PID.3")
	if err != nil || len(values) == 0 {
		return Result{Status: NotFound}
	}
	for _, v := range values {
		candidate, err := identifiers.ParseCX(v)
		if err != nil {
			continue
		}
		if candidate.Authority.Equal(target) {
			return Result{Status: Resolved, Identifier: candidate}
		}
	}
	return Result{Status: NotFound}
}

func (r *Hl7Pix) buildQuery(id identifiers.Identifier) hl7.Message {
	now := time.Now().Format("20060102150405")
	msh := hl7.NewSegment("MSH")
	msh.AddField(hl7.NewField(1, "|"))
	msh.AddField(hl7.NewField(2, `^~\&`))
	msh.AddField(hl7.NewField(3, r.SendingApplication))
	msh.AddField(hl7.NewField(4, r.SendingFacility))
	msh.AddField(hl7.NewField(5, "PIX"))
	msh.AddField(hl7.NewField(6, "MANAGER"))
	msh.AddField(hl7.NewField(7, now))
	msh.AddField(hl7.NewField(8, ""))
	msh.AddField(hl7.NewField(9, "QBP^Q21^QBP_Q21"))
	msh.AddField(hl7.NewField(10, now))
	msh.AddField(hl7.NewField(11, "P"))
	msh.AddField(hl7.NewField(12, "2.5"))

	qpd := hl7.NewSegment("QPD")
	qpd.AddField(hl7.NewField(1, "IHE PIX Query"))
	qpd.AddField(hl7.NewField(2, now))
	qpd.AddField(hl7.NewField(3, identifiers.FormatCX(id)))

	rcp := hl7.NewSegment("RCP")
	rcp.AddField(hl7.NewField(1, "I"))

	msg := hl7.NewEmptyMessage()
	msg.AddSegment(msh)
	msg.AddSegment(qpd)
	msg.AddSegment(rcp)
	return msg
}
