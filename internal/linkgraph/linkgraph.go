// Package linkgraph derives relationships between notes from their
// [[wikilink]] references. Every function is a plain scan over the full
// note set; nothing is indexed.
package linkgraph

import (
	"strings"

	"github.com/starford/zettenote/internal/content"
	"github.com/starford/zettenote/internal/models"
)

// Resolution is the outcome of resolving a wikilink title. Note is nil
// when no note carries the title.
type Resolution struct {
	Note  *models.Note
	Title string
}

// Found reports whether the title resolved to a note.
func (r Resolution) Found() bool { return r.Note != nil }

// GraphNode is a node in the note graph.
type GraphNode struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// GraphLink is a directed edge from the referencing note to the note it
// references.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Backlinks returns the notes whose content contains the literal
// [[title]] of the note identified by noteID, in the order of all. The
// note itself is never included. An unknown noteID yields no backlinks.
func Backlinks(noteID string, all []models.Note) []models.Note {
	out := []models.Note{}
	var target *models.Note
	for i := range all {
		if all[i].ID == noteID {
			target = &all[i]
			break
		}
	}
	if target == nil {
		return out
	}
	ref := content.Wikilink(target.Title)
	for _, n := range all {
		if n.ID != noteID && strings.Contains(n.Content, ref) {
			out = append(out, n)
		}
	}
	return out
}

// BacklinkIDs is Backlinks reduced to note IDs.
func BacklinkIDs(noteID string, all []models.Note) []string {
	bl := Backlinks(noteID, all)
	ids := make([]string, 0, len(bl))
	for _, n := range bl {
		ids = append(ids, n.ID)
	}
	return ids
}

// Resolve finds the note whose title equals title, ignoring case. When
// several notes share the title the first in all wins.
func Resolve(title string, all []models.Note) Resolution {
	for i := range all {
		if strings.EqualFold(all[i].Title, title) {
			n := all[i]
			return Resolution{Note: &n, Title: title}
		}
	}
	return Resolution{Title: title}
}

// Orphans returns the notes that no other note references, in the order
// of all.
func Orphans(all []models.Note) []models.Note {
	out := []models.Note{}
	for _, n := range all {
		ref := content.Wikilink(n.Title)
		referenced := false
		for _, other := range all {
			if other.ID != n.ID && strings.Contains(other.Content, ref) {
				referenced = true
				break
			}
		}
		if !referenced {
			out = append(out, n)
		}
	}
	return out
}

// Graph returns one node per note and one link per distinct resolved
// wikilink. Links to missing titles and self references are dropped.
func Graph(all []models.Note) ([]GraphNode, []GraphLink) {
	nodes := make([]GraphNode, 0, len(all))
	links := []GraphLink{}
	seen := make(map[GraphLink]struct{})
	for _, n := range all {
		nodes = append(nodes, GraphNode{ID: n.ID, Title: n.Title})
		for _, title := range content.ExtractLinks(n.Content) {
			res := Resolve(title, all)
			if !res.Found() || res.Note.ID == n.ID {
				continue
			}
			l := GraphLink{Source: n.ID, Target: res.Note.ID}
			if _, dup := seen[l]; dup {
				continue
			}
			seen[l] = struct{}{}
			links = append(links, l)
		}
	}
	return nodes, links
}
