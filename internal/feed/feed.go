// Package feed holds the application state a replica builds from delivered
// messages: top-level posts keyed by their own event id and replies keyed by
// their parent id. The routing has no causal meaning; it only groups
// messages for display.
package feed

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"replicated-feed/internal/clock"
	"replicated-feed/internal/event"
)

// Feed is not safe for concurrent use; the delivery engine owns it.
type Feed struct {
	posts   map[string][]event.Message
	replies map[string][]event.Message
	order   []string // event ids in application order
}

// New returns an empty feed.
func New() *Feed {
	return &Feed{
		posts:   make(map[string][]event.Message),
		replies: make(map[string][]event.Message),
	}
}

// Apply routes m into posts or replies.
func (f *Feed) Apply(m event.Message) {
	m = m.Clone()
	if m.IsReply() {
		f.replies[m.ParentID] = append(f.replies[m.ParentID], m)
	} else {
		f.posts[m.EventID] = append(f.posts[m.EventID], m)
	}
	f.order = append(f.order, m.EventID)
}

// Len returns the number of applied messages.
func (f *Feed) Len() int {
	return len(f.order)
}

// View is a read-only copy of a replica's state for presentation.
type View struct {
	ProcessID  int                        `json:"processId"`
	Model      string                     `json:"model"`
	Clock      clock.VectorClock          `json:"vectorClock"`
	BufferSize int                        `json:"bufferSize"`
	Posts      map[string][]event.Message `json:"posts"`
	Replies    map[string][]event.Message `json:"replies"`
	Applied    []string                   `json:"applied"`
}

// Snapshot copies the current collections into v.
func (f *Feed) Snapshot(v *View) {
	v.Posts = copyCollection(f.posts)
	v.Replies = copyCollection(f.replies)
	v.Applied = append([]string(nil), f.order...)
}

// Summary is the compact replica status served without the collections.
type Summary struct {
	ProcessID  int               `json:"processId"`
	Model      string            `json:"model"`
	Clock      clock.VectorClock `json:"vectorClock"`
	BufferSize int               `json:"bufferSize"`
	Applied    int               `json:"applied"`
	Orphans    int               `json:"orphans"`
}

// Summary counts what v holds.
func (v View) Summary() Summary {
	orphans := 0
	for _, rs := range v.Orphans() {
		orphans += len(rs)
	}
	return Summary{
		ProcessID:  v.ProcessID,
		Model:      v.Model,
		Clock:      v.Clock.Copy(),
		BufferSize: v.BufferSize,
		Applied:    len(v.Applied),
		Orphans:    orphans,
	}
}

// HasPost reports whether a top-level post with id is visible.
func (v View) HasPost(id string) bool {
	_, ok := v.Posts[id]
	return ok
}

// Orphans returns replies whose parent is not visible, keyed by the unknown
// parent id. Under EC this is expected; under CC it stays empty.
func (v View) Orphans() map[string][]event.Message {
	out := make(map[string][]event.Message)
	for parent, rs := range v.Replies {
		if !v.HasPost(parent) && !v.isReply(parent) {
			out[parent] = rs
		}
	}
	return out
}

func (v View) isReply(id string) bool {
	for _, rs := range v.Replies {
		for _, r := range rs {
			if r.EventID == id {
				return true
			}
		}
	}
	return false
}

// Render writes the human-readable feed: the header line, every post with
// its replies, then any orphaned replies.
func Render(w io.Writer, v View) error {
	var b strings.Builder

	fmt.Fprintf(&b, "--- FEED (P%d | Model: %s | Buffer: %d | VLC: %s) ---\n",
		v.ProcessID, v.Model, v.BufferSize, v.Clock)

	for _, id := range v.sortedPosts() {
		post := v.Posts[id][0]
		fmt.Fprintf(&b, "[%s] POST (%s): %s (ID: %s)\n",
			clockLabel(post.VectorClock), post.Author, post.Text, event.ShortID(post.EventID))
		v.renderReplies(&b, id, 1, map[string]bool{id: true})
	}

	orphans := v.Orphans()
	if len(orphans) > 0 {
		b.WriteString("*** ORPHAN REPLIES FOUND (INCONSISTENCY) ***\n")
		parents := make([]string, 0, len(orphans))
		for p := range orphans {
			parents = append(parents, p)
		}
		sort.Strings(parents)
		for _, p := range parents {
			for _, r := range orphans[p] {
				fmt.Fprintf(&b, "  [ORPHAN] REPLY (%s): %s (unknown parent: %s)\n",
					r.Author, r.Text, event.ShortID(p))
				v.renderReplies(&b, r.EventID, 2, map[string]bool{r.EventID: true})
			}
		}
	}

	if len(v.Posts) == 0 && len(v.Replies) == 0 && v.BufferSize == 0 {
		b.WriteString("Feed empty.\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// renderReplies writes the replies to parent and, below each one, the
// replies to it, indented one level deeper. seen stops reply cycles.
func (v View) renderReplies(b *strings.Builder, parent string, depth int, seen map[string]bool) {
	for _, r := range v.Replies[parent] {
		fmt.Fprintf(b, "%s-> REPLY (%s): %s (%s)\n",
			strings.Repeat("  ", depth), r.Author, r.Text, clockLabel(r.VectorClock))
		if seen[r.EventID] {
			continue
		}
		seen[r.EventID] = true
		v.renderReplies(b, r.EventID, depth+1, seen)
	}
}

// sortedPosts orders posts by first application.
func (v View) sortedPosts() []string {
	pos := make(map[string]int, len(v.Applied))
	for i, id := range v.Applied {
		if _, ok := pos[id]; !ok {
			pos[id] = i
		}
	}
	ids := make([]string, 0, len(v.Posts))
	for id := range v.Posts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, iok := pos[ids[i]]
		pj, jok := pos[ids[j]]
		if iok && jok && pi != pj {
			return pi < pj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func clockLabel(vc clock.VectorClock) string {
	if vc == nil {
		return "N/A"
	}
	return "VLC: " + vc.String()
}

func copyCollection(src map[string][]event.Message) map[string][]event.Message {
	out := make(map[string][]event.Message, len(src))
	for k, ms := range src {
		cp := make([]event.Message, len(ms))
		for i, m := range ms {
			cp[i] = m.Clone()
		}
		out[k] = cp
	}
	return out
}
