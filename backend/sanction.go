package backend

import (
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/wansing/curator/core"
	"github.com/wansing/curator/util"
)

// approve redeems an approval token. The token, not a permission rule,
// authorizes the vote, but the voter must be logged in as the token's actor.
func approve(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	if !ctx.LoggedIn() {
		ctx.SeeOther("/login")
		return nil
	}

	s, err := ctx.db.ApproveSanction(ctx.User, params.ByName("token"))
	if err != nil {
		return err
	}

	ctx.Success("Your approval of the %s has been recorded", s.Kind().Label())
	return seeOtherSanction(ctx, s)
}

func reject(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	if !ctx.LoggedIn() {
		ctx.SeeOther("/login")
		return nil
	}

	s, err := ctx.db.RejectSanction(ctx.User, params.ByName("token"))
	if err != nil {
		return err
	}

	ctx.Success("Your rejection of the %s has been recorded", s.Kind().Label())
	return seeOtherSanction(ctx, s)
}

// seeOtherSanction redirects to the status page of the sanction's subject,
// falling back to the root if the subject is gone.
func seeOtherSanction(ctx *context, s *core.Sanction) error {
	path, err := ctx.db.InternalPathByNodeID(s.NodeID())
	if err != nil {
		ctx.SeeOther("/status/")
		return nil
	}
	ctx.SeeOther("/status%s", path)
	return nil
}

func retract(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	n, err := ctx.Open(params.ByName("path"))
	if err != nil {
		return err
	}

	s, err := ctx.db.InitiateRetraction(n, ctx.User, req.PostFormValue("justification"))
	if err != nil {
		return err
	}

	ctx.Success("Retraction requested, %d approvals outstanding", countApprovers(s))
	ctx.SeeOther("/status%s", n.Location())
	return nil
}

func embargo(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	n, err := ctx.Open(params.ByName("path"))
	if err != nil {
		return err
	}

	end, err := util.ParseTime(req.PostFormValue("end"))
	if err != nil {
		return fmt.Errorf("%w: can't parse end date", core.ErrNodeState)
	}

	s, err := ctx.db.InitiateEmbargo(n, ctx.User, time.Unix(end, 0))
	if err != nil {
		return err
	}

	ctx.Success("Embargo requested, %d approvals outstanding", countApprovers(s))
	ctx.SeeOther("/status%s", n.Location())
	return nil
}

func requestApproval(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	n, err := ctx.Open(params.ByName("path"))
	if err != nil {
		return err
	}

	s, err := ctx.db.InitiateRegistrationApproval(n, ctx.User)
	if err != nil {
		return err
	}

	ctx.Success("Registration approval requested, %d approvals outstanding", countApprovers(s))
	ctx.SeeOther("/status%s", n.Location())
	return nil
}

func liftEmbargo(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	n, err := ctx.Open(params.ByName("path"))
	if err != nil {
		return err
	}

	s, err := ctx.db.InitiateEmbargoTermination(n, ctx.User)
	if err != nil {
		return err
	}

	ctx.Success("Early embargo end requested, %d approvals outstanding", countApprovers(s))
	ctx.SeeOther("/status%s", n.Location())
	return nil
}

func submitDraft(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	n, err := ctx.Open(params.ByName("path"))
	if err != nil {
		return err
	}

	s, err := ctx.db.InitiateDraftApproval(n, ctx.User, ctx.db.ModerateDrafts)
	if err != nil {
		return err
	}

	if s.State() == core.PendingModeration {
		ctx.Success("Draft submitted, awaiting moderation")
	} else {
		ctx.Success("Draft submitted, %d approvals outstanding", countApprovers(s))
	}
	ctx.SeeOther("/status%s", n.Location())
	return nil
}

func moderation(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	s, err := ctx.db.GetSanction(params.ByName("id"))
	if err != nil {
		return err
	}

	switch params.ByName("verdict") {
	case "accept":
		if err := ctx.db.AcceptModeration(s, ctx.User); err != nil {
			return err
		}
		ctx.Success("The %s is now open for votes", s.Kind().Label())
	case "reject":
		if err := ctx.db.RejectModeration(s, ctx.User); err != nil {
			return err
		}
		ctx.Success("The %s has been rejected", s.Kind().Label())
	default:
		return fmt.Errorf("unknown verdict %q", params.ByName("verdict"))
	}

	return seeOtherSanction(ctx, s)
}

func countApprovers(s *core.Sanction) int {
	approvers, err := s.Approvers()
	if err != nil {
		return 0
	}
	return len(approvers)
}
