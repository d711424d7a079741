package backend

import (
	"bytes"
	"html/template"
	"time"

	"github.com/wansing/curator/core"
)

func Breadcrumbs(node *core.Node, linkLast bool) template.HTML {

	var nodes = []*core.Node{}
	for n := node; n != nil; n = n.Parent {
		nodes = append(nodes, n)
	}

	// reverse
	for i := len(nodes)/2 - 1; i >= 0; i-- {
		opp := len(nodes) - 1 - i
		nodes[i], nodes[opp] = nodes[opp], nodes[i]
	}

	var buf = &bytes.Buffer{}
	buf.WriteString(`<nav aria-label="breadcrumb" style="margin-top: 1rem;"><ol class="breadcrumb">`)

	for _, n := range nodes {
		var isLast = n == node
		buf.WriteString(`<li class="breadcrumb-item`)
		if isLast {
			buf.WriteString(` active`)
		}
		buf.WriteString(`">`)
		if !isLast || linkLast {
			buf.WriteString(`<a href="status` + n.Location() + `">`)
		}
		buf.WriteString(n.Slug())
		if !isLast || linkLast {
			buf.WriteString(`</a>`)
		}
		buf.WriteString(`</li>`)
	}

	buf.WriteString(`</ol></nav>`)

	return template.HTML(buf.String())
}

func FormatTs(ts int64) string {
	// ignores the user timezone
	return time.Unix(ts, 0).Format("_2.1.2006 15:04:05")
}
