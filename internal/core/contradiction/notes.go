package contradiction

import (
	"fmt"
	"strings"
	"time"

	"github.com/noesislabs/noesis/internal/core/model"
)

// noteMarker opens every generated annotation. Its presence alone is not
// enough to establish idempotence; HasNote also matches the counterpart id
// and the exact description.
const noteMarker = "CONTRADICTION"

// BuildNote renders the annotation appended to an entry when a contradiction
// against another entry is stored. The counterpart's id is embedded so a
// later HasNote check can distinguish notes about different entries that
// happen to share an author.
func BuildNote(other model.EntryRef, description string, now time.Time) string {
	author := other.Author
	if author == "" {
		author = "unknown"
	}
	return fmt.Sprintf("⚠️ %s detected (%s):\nContradicts: %s (%s)\n%s",
		noteMarker, now.Format("2006-01-02"), author, other.ID, description)
}

// HasNote reports whether existing user notes already carry an annotation for
// this specific contradiction: the marker, the counterpart's id, and the
// exact description must all be present.
func HasNote(existingNotes, otherID, description string) bool {
	return strings.Contains(existingNotes, noteMarker) &&
		strings.Contains(existingNotes, "("+otherID+")") &&
		strings.Contains(existingNotes, description)
}

// AppendNote joins an annotation onto existing notes, separated by a blank
// line.
func AppendNote(existingNotes, note string) string {
	if strings.TrimSpace(existingNotes) == "" {
		return note
	}
	return existingNotes + "\n\n" + note
}
