package recognition

import "strings"

// transcript holds the committed fragments and the single pending fragment.
// Committed text only grows while listening; pending is replaced wholesale on
// every result event and discarded when the session ends. Not safe for
// concurrent use; the controller guards it.
type transcript struct {
	committed []string
	pending   string
}

func (t *transcript) appendCommitted(fragment string) {
	if fragment == "" {
		return
	}
	t.committed = append(t.committed, fragment)
}

func (t *transcript) replacePending(text string) {
	t.pending = text
}

// clearPending reports whether there was anything to clear.
func (t *transcript) clearPending() bool {
	had := t.pending != ""
	t.pending = ""
	return had
}

func (t *transcript) reset() {
	t.committed = nil
	t.pending = ""
}

func (t *transcript) committedText() string {
	return strings.Join(t.committed, "")
}

func (t *transcript) full() string {
	return t.committedText() + t.pending
}
