package transfer

import "sync"

// CompletedFile is one archived transfer.
type CompletedFile struct {
	Name string
	Size int64
	// Location is where the receiver stored the bytes. Empty on the sending side.
	Location string
}

// CompletedList is an append-only record of finished files, safe for
// concurrent use.
type CompletedList struct {
	mu    sync.Mutex
	items []CompletedFile
}

func NewCompletedList() *CompletedList {
	return &CompletedList{}
}

func (l *CompletedList) Add(f CompletedFile) {
	l.mu.Lock()
	l.items = append(l.items, f)
	l.mu.Unlock()
}

// Items returns a copy of the list in completion order.
func (l *CompletedList) Items() []CompletedFile {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CompletedFile, len(l.items))
	copy(out, l.items)
	return out
}

func (l *CompletedList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *CompletedList) TotalSize() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, f := range l.items {
		total += f.Size
	}
	return total
}
