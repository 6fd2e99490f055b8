// Package diff computes minimal single-region text diffs and applies them
// with cursor remapping.
//
// The diff is intentionally non-semantic: it finds the longest common
// prefix, then the longest common suffix that does not overlap the prefix,
// and treats everything in between as one contiguous replaced region. No
// word- or token-level alignment is attempted; that matches the simplified
// consistency model of the engine, where whole-content edits are exchanged
// and converge by last-write-wins.
//
// All offsets are rune offsets, so multi-byte input (IME composition, CJK
// text) remaps correctly.
package diff

// Patch describes one contiguous replaced region of a text. Start and End
// are rune offsets into the old text; Removed is the old text between them
// and Inserted its replacement.
type Patch struct {
	Start    int
	End      int
	Removed  string
	Inserted string
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Removed == "" && p.Inserted == ""
}

// Delta returns the rune-length change caused by applying the patch.
func (p Patch) Delta() int {
	return len([]rune(p.Inserted)) - (p.End - p.Start)
}

// Compute returns the minimal single-region diff between oldText and
// newText. For equal inputs the patch collapses to an empty region at the
// end of the text. The suffix scan stops before it would overlap the
// common prefix, so Start <= End always holds.
func Compute(oldText, newText string) Patch {
	o := []rune(oldText)
	n := []rune(newText)

	start := 0
	oldEnd := len(o)
	newEnd := len(n)

	for start < oldEnd && start < newEnd && o[start] == n[start] {
		start++
	}

	for oldEnd > start && newEnd > start && o[oldEnd-1] == n[newEnd-1] {
		oldEnd--
		newEnd--
	}

	return Patch{
		Start:    start,
		End:      oldEnd,
		Removed:  string(o[start:oldEnd]),
		Inserted: string(n[start:newEnd]),
	}
}

// Apply replaces the patched region of text and returns the result.
// Out-of-range patch bounds are clamped to the text so a stale patch can
// never panic the caller.
func Apply(text string, p Patch) string {
	r := []rune(text)

	start := clamp(p.Start, 0, len(r))
	end := clamp(p.End, start, len(r))

	return string(r[:start]) + p.Inserted + string(r[end:])
}

// RemapCursor translates a cursor offset in the old text to the equivalent
// offset after the patch is applied:
//
//   - change entirely at or before the cursor: the cursor shifts by the
//     patch delta. A pure insertion at the cursor position falls in this
//     branch, so the cursor lands after the inserted text.
//   - change straddling the cursor: the cursor snaps to the end of the
//     inserted text.
//   - change entirely after the cursor: the cursor is unchanged.
//
// The result is never negative; callers clamp the upper bound against the
// new content with ClampCursor.
func RemapCursor(cursor int, p Patch) int {
	inserted := len([]rune(p.Inserted))

	switch {
	case p.End <= cursor:
		cursor += inserted - (p.End - p.Start)
	case p.Start < cursor:
		cursor = p.Start + inserted
	}

	if cursor < 0 {
		return 0
	}
	return cursor
}

// ClampCursor bounds a cursor offset to [0, len(text)] in runes. This is
// the fallback for stale offsets that cannot be mapped onto the current
// content; it never fails.
func ClampCursor(cursor int, text string) int {
	return clamp(cursor, 0, len([]rune(text)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
