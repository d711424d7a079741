package backend

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/wansing/curator/core"
	"gitlab.com/golang-commonmark/markdown"
)

var commonMarkParser = markdown.New(markdown.HTML(false), markdown.Linkify(true), markdown.Typographer(true), markdown.MaxNesting(10))

// renderJustification renders the markdown justification, with raw HTML disabled.
func renderJustification(justification string) template.HTML {
	return template.HTML(commonMarkParser.RenderToString([]byte(justification)))
}

var statusTmpl = tmpl(`
	{{ Breadcrumbs .Node true }}

	<h1>{{ .Node.MailTitle }}</h1>

	<p>
		{{ if .Node.IsRetracted }}
			<span class="badge badge-dark">retracted</span>
		{{ end }}
		{{ if .Node.IsRegistered }}
			<span class="badge badge-info">registration</span>
		{{ else }}
			<span class="badge badge-secondary">project</span>
		{{ end }}
		{{ if .Node.IsPublic }}
			<span class="badge badge-success">public</span>
		{{ else }}
			<span class="badge badge-warning">private</span>
		{{ end }}
		{{ if .EmbargoEnd }}
			<span class="badge badge-warning">embargoed until {{ FormatTs .EmbargoEnd }}</span>
		{{ end }}
	</p>

	{{ if .Sanctions }}
		<h2>Pending actions</h2>
		<table class="table table-sm">
			<tr>
				<th>Action</th>
				<th>State</th>
				<th>Initiated</th>
				<th>Approvals</th>
				<th></th>
			</tr>
			{{ range .Sanctions }}
				<tr>
					<td>{{ .Label }}</td>
					<td>{{ .State }}</td>
					<td>{{ .FormatDateTime .Initiated }}</td>
					<td>{{ .Approved }} of {{ .Total }}</td>
					<td>
						{{ if and $.IsRootAdmin .AwaitsModeration }}
							<form class="form-inline" method="post" action="moderation/{{ .ID }}/accept">
								<button type="submit" class="btn btn-sm btn-success">Accept</button>
							</form>
							<form class="form-inline" method="post" action="moderation/{{ .ID }}/reject">
								<button type="submit" class="btn btn-sm btn-danger">Reject</button>
							</form>
						{{ end }}
					</td>
				</tr>
				{{ if .Justification }}
					<tr>
						<td colspan="5">{{ .Justification }}</td>
					</tr>
				{{ end }}
			{{ end }}
		</table>
	{{ end }}

	{{ if .CanAdmin }}
		<h2>Actions</h2>

		{{ if .CanRequestApproval }}
			<form class="form-inline mb-2" method="post" action="request-approval{{ .Node.Location }}">
				<button type="submit" class="btn btn-primary">Request registration approval</button>
			</form>
		{{ end }}

		{{ if .CanRegister }}
			<form class="form-inline mb-2" method="post" action="register{{ .Node.Location }}">
				<button type="submit" class="btn btn-primary">Create registration</button>
			</form>
		{{ end }}

		{{ if .CanSubmitDraft }}
			<form class="form-inline mb-2" method="post" action="submit-draft{{ .Node.Location }}">
				<button type="submit" class="btn btn-primary">Submit draft for registration</button>
			</form>
		{{ end }}

		{{ if .CanEmbargo }}
			<form class="form-inline mb-2" method="post" action="embargo{{ .Node.Location }}">
				<label class="mr-2">Embargo until</label>
				<input class="form-control mr-2" type="text" name="end" placeholder="31.12.2027 00:00" required>
				<button type="submit" class="btn btn-warning">Request embargo</button>
			</form>
		{{ end }}

		{{ if .CanLiftEmbargo }}
			<form class="form-inline mb-2" method="post" action="lift-embargo{{ .Node.Location }}">
				<button type="submit" class="btn btn-warning">Request early embargo end</button>
			</form>
		{{ end }}

		{{ if .CanRetract }}
			<form method="post" action="retract{{ .Node.Location }}">
				<div class="form-group">
					<label>Justification</label>
					<textarea class="form-control" name="justification" rows="4" required></textarea>
				</div>
				<button type="submit" class="btn btn-danger">Request retraction</button>
			</form>
		{{ end }}
	{{ end }}

	{{ if .Children }}
		<h2>Components</h2>
		<ul>
			{{ range .Children }}
				<li><a href="status{{ .Location }}">{{ .Slug }}</a></li>
			{{ end }}
		</ul>
	{{ end }}

	{{ if .Records }}
		<h2>Log</h2>
		<table class="table table-sm">
			{{ range .Records }}
				<tr>
					<td>{{ FormatTs .Ts }}</td>
					<td>{{ .Action }}</td>
				</tr>
			{{ end }}
		</table>
	{{ end }}`)

type sanctionView struct {
	ctx           *context
	ID            string
	Label         string
	State         core.State
	Initiated     int64
	Approved      int
	Total         int
	Justification template.HTML
}

func (v *sanctionView) AwaitsModeration() bool {
	return v.State == core.PendingModeration
}

func (v *sanctionView) FormatDateTime(ts int64) string {
	return v.ctx.FormatDateTime(ts)
}

type statusData struct {
	*context
	Node       *core.Node
	Children   []*core.Node
	Sanctions  []*sanctionView
	Records    []core.DBRecord
	EmbargoEnd int64
}

func (data *statusData) CanAdmin() bool {
	return data.Node.RequirePermission(core.Admin, data.User) == nil
}

// hasPendingVote reports whether a sanction is still collecting votes. An
// approved embargo does not block further actions like retraction.
func (data *statusData) hasPendingVote() bool {
	for _, s := range data.Sanctions {
		if s.State == core.Unapproved || s.State == core.PendingModeration {
			return true
		}
	}
	return false
}

func (data *statusData) CanRequestApproval() bool {
	return data.Node.IsRegistered() && !data.Node.IsPublic() && !data.hasPendingVote()
}

func (data *statusData) CanRegister() bool {
	return !data.Node.IsRegistered() && data.Node.Parent != nil
}

func (data *statusData) CanSubmitDraft() bool {
	return !data.Node.IsRegistered() && !data.hasPendingVote()
}

func (data *statusData) CanEmbargo() bool {
	return data.Node.IsRegistered() && !data.Node.IsPublic() && !data.Node.IsRetracted() && !data.hasPendingVote()
}

func (data *statusData) CanLiftEmbargo() bool {
	return data.EmbargoEnd != 0 && !data.hasPendingVote()
}

func (data *statusData) CanRetract() bool {
	return data.Node.IsRegistered() && (data.Node.IsPublic() || data.EmbargoEnd != 0) && !data.Node.IsRetracted() && !data.hasPendingVote()
}

func status(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	n, err := ctx.Open(params.ByName("path"))
	if err != nil {
		return err
	}

	children, err := n.GetChildren()
	if err != nil {
		return err
	}

	sanctions, err := n.Governor()
	if err != nil {
		return err
	}

	var views = []*sanctionView{}
	for _, dbSanction := range sanctions {
		s, err := ctx.db.GetSanction(dbSanction.ID())
		if err != nil {
			return err
		}
		approved, total, err := s.ApprovalCount()
		if err != nil {
			return err
		}
		var view = &sanctionView{
			ctx:       ctx,
			ID:        s.ID(),
			Label:     s.Kind().Label(),
			State:     s.State(),
			Initiated: s.Initiated(),
			Approved:  approved,
			Total:     total,
		}
		if justification := strings.TrimSpace(s.Justification()); justification != "" {
			view.Justification = renderJustification(justification)
		}
		views = append(views, view)
	}

	embargoEnd, err := n.EmbargoEnd()
	if err != nil {
		return err
	}

	records, err := ctx.db.RecordDB.GetRecords(n.ID(), 50, 0)
	if err != nil {
		return err
	}

	return statusTmpl.Execute(w, &statusData{
		context:    ctx,
		Node:       n,
		Children:   children,
		Sanctions:  views,
		Records:    records,
		EmbargoEnd: embargoEnd,
	})
}
