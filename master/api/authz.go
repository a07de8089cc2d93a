package api

import (
	"context"

	"github.com/isabella232/sdc-amon/master/ufds"
	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/model"
)

// authorizeProbePut enforces the target rules for writing a probe. Exactly
// one of these must hold:
//
//  1. the probe targets a machine the account owns;
//  2. the probe targets a server, the caller is an operator and the server
//     exists;
//  3. the probe targets another tenant's machine, runs in the global zone
//     and the caller is an operator.
//
// Failures surface as InvalidArgument, never as a forbidden kind, so a
// caller cannot distinguish "does not exist" from "not yours".
func (h *Handler) authorizeProbePut(ctx context.Context, acct *ufds.Account, p *model.Probe) error {
	if p.Server != "" {
		op, err := h.isOperator(acct.DN)
		if err != nil {
			return err
		}
		if !op {
			return amonerr.InvalidArgument("server-targeted probes require operator privileges")
		}
		exists, err := h.serverExists(ctx, p.Server)
		if err != nil {
			return err
		}
		if !exists {
			return amonerr.InvalidArgument("server %q is unknown", p.Server)
		}
		return nil
	}

	m, err := h.machine(ctx, p.Machine)
	if amonerr.IsNotFound(err) {
		return amonerr.InvalidArgument("machine %q is not owned by account %q", p.Machine, acct.Login)
	}
	if err != nil {
		return err
	}
	if m.Owner == acct.UUID {
		return nil
	}
	if p.Global {
		op, err := h.isOperator(acct.DN)
		if err != nil {
			return err
		}
		if op {
			return nil
		}
	}
	return amonerr.InvalidArgument("machine %q is not owned by account %q", p.Machine, acct.Login)
}

// authorizeProbeDelete applies the PUT rule to the stored probe; operators
// may always delete.
func (h *Handler) authorizeProbeDelete(ctx context.Context, acct *ufds.Account, p *model.Probe) error {
	op, err := h.isOperator(acct.DN)
	if err != nil {
		return err
	}
	if op {
		return nil
	}
	return h.authorizeProbePut(ctx, acct, p)
}
