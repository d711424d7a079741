package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/wansing/curator/core"
)

var accessTmpl = tmpl(`<h1>Access Rules of {{ .Selected.Location }}</h1>

	<p>
		<a class="btn btn-secondary" href="status{{ .Selected.Location }}">Cancel</a>
	</p>

	<form method="post">

		<h2>Group permissions</h2>

		<table class="table">

			<tr>
				<th>Group</th>
				<th>Permission</th>
				<th>Delete</th>
			</tr>

			{{ range $group, $permission := .Selected.GetAssignedRules }}

				<tr>
					<td>{{ $group.Name }}</td>
					<td>{{ $permission.String }}</td>
					<td><input type="checkbox" name="remove[]" value="{{ $group.ID }}"></td>
				</tr>

			{{ end }}

			<tr>
				<td>
					<select class="form-control" name="group">
						<option value=""></option>
						<option value="0">All Users</option>

						{{ range $.AllGroups }}
							<option value="{{ .ID }}">{{ .Name }}</option>
						{{ end }}

					</select>
				</td>
				<td>
					<select class="form-control" name="permission">
						<option value=""></option>
						<option value="` + strconv.Itoa(int(core.None)) + `">none</option>
						<option value="` + strconv.Itoa(int(core.Read)) + `">read</option>
						<option value="` + strconv.Itoa(int(core.Create)) + `">create</option>
						<option value="` + strconv.Itoa(int(core.Remove)) + `">remove</option>
						<option value="` + strconv.Itoa(int(core.Admin)) + `">admin</option>
					</select>
				</td>
				<td></td>
			</tr>
		</table>

		<p>
			<button type="submit" class="btn btn-primary" name="save">Apply</button>
		</p>

	</form>`)

type accessData struct {
	*context
	Selected *core.Node
}

func (t *accessData) AllGroups() ([]core.DBGroup, error) {
	return t.db.GetAllGroups(100000, 0) // assuming there are not more than 100k groups
}

func access(w http.ResponseWriter, req *http.Request, ctx *context, params httprouter.Params) error {

	selected, err := ctx.Open(params.ByName("path"))
	if err != nil {
		return err
	}

	err = selected.RequirePermission(core.Admin, ctx.User)
	if err != nil {
		return err
	}

	// POST

	if req.Method == http.MethodPost {

		if err := req.ParseForm(); err != nil {
			return err
		}

		removeRules := make(map[int]interface{})

		for _, groupIDString := range req.PostForm["remove[]"] {
			groupID, err := strconv.Atoi(groupIDString)
			if err != nil {
				return err
			}
			removeRules[groupID] = struct{}{}
		}

		// anti-lockout on the root node

		if selected.ID() == 1 {
			rules, err := selected.GetAssignedRules()
			if err != nil {
				return err
			}
			var adminRulesLeft int
			for group, perm := range rules {
				if perm < core.Admin {
					continue
				}
				if _, gone := removeRules[group.ID()]; !gone {
					adminRulesLeft++
				}
			}
			if adminRulesLeft == 0 {
				return errors.New("you can't lock yourself out")
			}
		}

		for removeGroupID := range removeRules {
			err = ctx.db.RemoveAccessRule(selected, removeGroupID)
			if err != nil {
				return fmt.Errorf("error removing rule: %v", err)
			}
		}

		// add (group, permission)

		addGroupIDStr := req.PostFormValue("group")
		addPermissionStr := req.PostFormValue("permission")

		if addGroupIDStr != "" && addPermissionStr != "" {

			addGroupID, err := strconv.Atoi(addGroupIDStr)
			if err != nil {
				return err
			}

			addPermission, err := strconv.Atoi(addPermissionStr)
			if err != nil {
				return err
			}

			err = ctx.db.AddAccessRule(selected, addGroupID, core.Permission(addPermission))
			if err != nil {
				return fmt.Errorf("error adding rule: %v", err)
			}
		}

		ctx.SeeOther("/access%s", selected.Location())
		return nil
	}

	return accessTmpl.Execute(w, &accessData{
		context:  ctx,
		Selected: selected,
	})
}
