package backend

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/wansing/curator/core"
)

var createTmpl = tmpl(`<h1>Create node below {{ .Selected.Location }}</h1>

	<p>
		<a class="btn btn-secondary" href="status{{ .Selected.Location }}">Cancel</a>
	</p>

	<form method="post">
		<div class="form-row">
			<div class="col-md-5">
				<input class="form-control" name="slug" placeholder="Slug" value="{{ .Slug }}" required>
			</div>
			<div class="col-md-5">
				<input class="form-control" name="title" placeholder="Title" value="{{ .Title }}">
			</div>
			<div class="col-md-2">
				<button type="submit" class="btn btn-primary" name="create">Create</button>
			</div>
		</div>
	</form>`)

type createData struct {
	*context
	Selected *core.Node // parent
	Slug     string
	Title    string
}

func create(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	selected, err := ctx.Open(params.ByName("path"))
	if err != nil {
		return err
	}

	if err = selected.RequirePermission(core.Create, ctx.User); err != nil {
		return err
	}

	// the cascades of a governing sanction are computed from the tree as it
	// was, so the tree must not grow while one is active
	if governing, err := selected.Governor(); err != nil {
		return err
	} else if len(governing) > 0 {
		return fmt.Errorf("%w: the node is subject to a pending action", core.ErrNodeState)
	}

	// POST

	if req.Method == http.MethodPost {
		if _, err := ctx.db.NodeDB.InsertNode(selected.ID(), req.PostFormValue("slug"), req.PostFormValue("title")); err == nil {
			ctx.SeeOther("/status%s", selected.Location())
			return nil
		} else {
			ctx.Danger(err)
		}
	}

	return createTmpl.Execute(w, &createData{
		context:  ctx,
		Selected: selected,
		Slug:     req.PostFormValue("slug"),
		Title:    req.PostFormValue("title"),
	})
}
