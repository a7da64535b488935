package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	reportio "github.com/matzehuels/supplychain/pkg/io"
	"github.com/matzehuels/supplychain/pkg/publishers"
)

// renderOptions controls human-readable report output.
type renderOptions struct {
	// Diffable drops numbering, styling and counts so two reports can be
	// compared line by line.
	Diffable bool
}

func (o renderOptions) style(s interface{ Render(...string) string }, text string) string {
	if o.Diffable {
		return text
	}
	return s.Render(text)
}

// accountLabel names an account the way crates.io shows it.
func accountLabel(a reportio.Account) string {
	if a.Kind == publishers.KindTeam {
		if a.Org == "" {
			return "team " + a.Name
		}
		return "team " + a.Org + "/" + a.Name
	}
	if a.Name != "" && a.Name != a.Login {
		return fmt.Sprintf("%s (%s)", a.Login, a.Name)
	}
	return a.Login
}

// renderPublishers writes the publisher view: every user, then every
// unexpanded team, with the crates each can publish.
func renderPublishers(w io.Writer, doc *reportio.Document, opts renderOptions) {
	var users, teams []reportio.PublisherRow
	for _, p := range doc.Publishers {
		if p.Kind == publishers.KindTeam {
			teams = append(teams, p)
		} else {
			users = append(users, p)
		}
	}
	if opts.Diffable {
		sortRows(users)
		sortRows(teams)
	}

	if len(users) > 0 {
		fmt.Fprintln(w, opts.style(StyleTitle, fmt.Sprintf("The following %d individuals can publish updates for your dependencies:", len(users))))
		fmt.Fprintln(w)
		writeRows(w, users, opts)
	} else {
		fmt.Fprintln(w, "No individuals can publish updates for your dependencies.")
	}

	if len(teams) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, opts.style(StyleTitle, fmt.Sprintf("All members of the following %d teams can publish updates for your dependencies:", len(teams))))
		fmt.Fprintln(w)
		writeRows(w, teams, opts)
	}

	renderFailures(w, doc, opts)
}

func sortRows(rows []reportio.PublisherRow) {
	sort.Slice(rows, func(i, j int) bool { return accountLabel(rows[i].Account) < accountLabel(rows[j].Account) })
}

func writeRows(w io.Writer, rows []reportio.PublisherRow, opts renderOptions) {
	for i, r := range rows {
		label := accountLabel(r.Account)
		if r.Kind == publishers.KindTeam {
			label = opts.style(styleTeam, label)
		} else {
			label = opts.style(StyleHighlight, label)
		}
		crates := strings.Join(r.Crates, ", ")
		if opts.Diffable {
			fmt.Fprintf(w, "%s via crates: %s\n", label, crates)
			continue
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			StyleNumber.Render(fmt.Sprintf("%3d.", i+1)),
			label,
			StyleDim.Render(fmt.Sprintf("via %d crates:", len(r.Crates))),
			crates)
	}
}

// renderCrates writes the crate view: every requested crate with its
// publishers, in request order.
func renderCrates(w io.Writer, doc *reportio.Document, opts renderOptions) {
	fmt.Fprintln(w, opts.style(StyleTitle, "Dependency crates with the people and teams that can publish them to crates.io:"))
	fmt.Fprintln(w)

	for i, c := range doc.Crates {
		name := c.Name
		if c.Version != "" && !opts.Diffable {
			name += " " + c.Version
		}
		var owners []string
		for _, a := range c.Publishers {
			owners = append(owners, accountLabel(a))
		}
		list := strings.Join(owners, ", ")
		switch {
		case c.Failure != nil && len(owners) == 0:
			list = opts.style(StyleError, "unknown ("+string(c.Failure.Kind)+")")
		case c.Failure != nil:
			list += " " + opts.style(StyleWarning, "(incomplete: "+string(c.Failure.Kind)+")")
		case len(owners) == 0:
			list = opts.style(StyleDim, "nobody")
		}

		if opts.Diffable {
			fmt.Fprintf(w, "%s: %s\n", name, list)
			continue
		}
		fmt.Fprintf(w, "%s %s: %s\n", StyleNumber.Render(fmt.Sprintf("%3d.", i+1)), StyleHighlight.Render(name), list)
	}

	renderFailures(w, doc, opts)
}

// renderFailures lists crates whose publishers could not be fully
// determined, so an empty list is never mistaken for "nobody".
func renderFailures(w io.Writer, doc *reportio.Document, opts renderOptions) {
	var failed []reportio.CrateEntry
	for _, c := range doc.Crates {
		if c.Failure != nil {
			failed = append(failed, c)
		}
	}
	if len(failed) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, opts.style(StyleWarning, fmt.Sprintf("Publishers of %d crates could not be fully determined:", len(failed))))
	for _, c := range failed {
		fmt.Fprintf(w, "  %s: %s\n", c.Name, c.Failure.Message)
	}
}
