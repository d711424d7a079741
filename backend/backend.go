package backend

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/wansing/curator/core"
)

var ErrAuth = errors.New("unauthorized")

// we need the CoreDB in the backend
type context struct {
	*core.Request
	Prefix string // with trailing slash
	db     *core.CoreDB
}

func (ctx *context) GroupsWriteable() bool {
	return ctx.db.GroupDB.Writeable()
}

func (ctx *context) UsersWriteable() bool {
	return ctx.db.UserDB.Writeable()
}

func middleware(db *core.CoreDB, prefix string, requireLoggedIn bool, f func(http.ResponseWriter, *http.Request, *context, httprouter.Params) error) func(http.ResponseWriter, *http.Request, httprouter.Params) {
	return func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {

		var request = db.NewRequest(w, req)

		var ctx = &context{
			Prefix:  prefix + "/",
			Request: request,
			db:      db,
		}
		defer ctx.Cleanup()

		if requireLoggedIn && !ctx.LoggedIn() {
			ctx.SeeOther("/login")
			return
		}

		if err := f(w, req, ctx, params); err != nil {
			w.WriteHeader(httpStatus(err))
			// probably no template has been executed, so execute error template
			errorTmpl.Execute(w, struct {
				*context
				Err error
			}{
				context: ctx,
				Err:     err,
			})
		}
	}
}

// httpStatus maps the error taxonomy to HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrApprovalToken), errors.Is(err, core.ErrRejectionToken):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNodeState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var errorTmpl = tmpl(`
	<div class="alert alert-danger" role="alert">
		{{ .Err }}
	</div>`)

func NewBackendRouter(db *core.CoreDB, prefix string) http.Handler {

	var router = httprouter.New()

	var GETAndPOST = func(path string, handle httprouter.Handle) {
		router.GET(path, handle)
		router.POST(path, handle)
	}

	// public
	router.GET("/", middleware(db, prefix, false, root))
	GETAndPOST("/login", middleware(db, prefix, false, login))
	router.GET("/sanction/approve/:token", middleware(db, prefix, false, approve))
	router.GET("/sanction/reject/:token", middleware(db, prefix, false, reject))

	// private
	GETAndPOST("/access/*path", middleware(db, prefix, true, access))
	GETAndPOST("/create/*path", middleware(db, prefix, true, create))
	router.GET("/logout", middleware(db, prefix, true, logout))
	router.POST("/embargo/*path", middleware(db, prefix, true, embargo))
	router.POST("/lift-embargo/*path", middleware(db, prefix, true, liftEmbargo))
	router.POST("/moderation/:id/:verdict", middleware(db, prefix, true, moderation))
	router.POST("/register/*path", middleware(db, prefix, true, register))
	router.POST("/request-approval/*path", middleware(db, prefix, true, requestApproval))
	router.POST("/retract/*path", middleware(db, prefix, true, retract))
	router.POST("/submit-draft/*path", middleware(db, prefix, true, submitDraft))
	router.GET("/status/*path", middleware(db, prefix, true, status))

	return router
}

func tmpl(text string) *template.Template {
	t := template.Must(backendTmpl.Clone())
	t = template.Must(t.Parse(`{{ define "content" }}` + text + `{{ end }}`))
	return t
}

var backendTmpl = template.Must(template.New("backend").Funcs(
	template.FuncMap{
		"Breadcrumbs": func(n *core.Node, link bool) template.HTML {
			return Breadcrumbs(n, link)
		},
		"CanAdmin": func(u core.DBUser, n *core.Node) bool {
			return n.RequirePermission(core.Admin, u) == nil
		},
		"FormatTs": FormatTs,
	}).Parse(`
<!DOCTYPE html>
<html>
	<head>
		<base href="{{.Prefix}}">
		<meta charset="utf-8">
		<title>Curator</title>
	</head>
	<body>

		{{ if .LoggedIn }}
			<nav class="navbar navbar-expand-md bg-light">
				<ul class="navbar-nav">
					<li class="nav-item">
						<a class="nav-link" href="status/">Registry</a>
					</li>
					<li class="nav-item">
						<span class="nav-link">{{ .User.Name }}</span>
					</li>
					<li class="nav-item">
						<a class="nav-link" href="logout">Logout</a>
					</li>
				</ul>
			</nav>
		{{ end }}

		<div class="container pt-3">
			{{ .RenderNotifications }}
			{{ template "content" . }}
		</div>
	</body>
</html>`))
