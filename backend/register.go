package backend

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// register copies the project into a frozen registration tree and immediately
// requests registration approval for it.
func register(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	n, err := ctx.Open(params.ByName("path"))
	if err != nil {
		return err
	}

	registration, err := ctx.db.CreateRegistration(n, ctx.User)
	if err != nil {
		return err
	}

	s, err := ctx.db.InitiateRegistrationApproval(registration, ctx.User)
	if err != nil {
		// the copy exists, approval can be requested from its status page
		ctx.Danger(err)
		ctx.SeeOther("/status%s", registration.Location())
		return nil
	}

	ctx.Success("Registration created, %d approvals outstanding", countApprovers(s))
	ctx.SeeOther("/status%s", registration.Location())
	return nil
}
