package session

import (
	"context"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

// ProcedureRemote maps each mutation kind onto its remote procedure.
type ProcedureRemote struct {
	Procs backend.Procedures
}

func (r ProcedureRemote) Invoke(ctx context.Context, userID string, p wallet.Pending) error {
	name, args := procedureFor(userID, p)
	if name == "" {
		return wallet.ErrUnsupportedMutation
	}
	return r.Procs.Call(ctx, name, args)
}

func procedureFor(userID string, p wallet.Pending) (string, backend.Args) {
	m := p.Mutation
	args := backend.Args{"user_id": userID}

	switch m.Kind {
	case wallet.KindEntryFee:
		args["tournament_id"] = m.Tournament.ID
		args["transaction_id"] = p.ID
		return backend.ProcJoinTournament, args
	case wallet.KindDeposit:
		args["amount"] = m.Amount
		args["transaction_id"] = p.ID
		return backend.ProcRequestDeposit, args
	case wallet.KindWithdrawal:
		args["amount"] = m.Amount
		args["transaction_id"] = p.ID
		return backend.ProcRequestWithdrawal, args
	case wallet.KindProfileEdit:
		args["username"] = m.Username
		args["avatar"] = m.Avatar
		return backend.ProcUpdateProfile, args
	}
	return "", nil
}
