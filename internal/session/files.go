package session

// FileSelection tracks the repository files known to the client, the files
// marked active in the file list, and the candidates of the "add files" view.
type FileSelection struct {
	catalog    []string
	known      map[string]struct{}
	active     map[string]struct{}
	viewOpen   bool
	candidates []string
	rev        uint64
}

// NewFileSelection creates an empty selection.
func NewFileSelection() *FileSelection {
	return &FileSelection{
		known:  make(map[string]struct{}),
		active: make(map[string]struct{}),
	}
}

// Replace swaps the catalog wholesale. Duplicates are dropped, the backend's
// order is kept, and all active marks are cleared.
func (f *FileSelection) Replace(files []string) {
	f.catalog = make([]string, 0, len(files))
	f.known = make(map[string]struct{}, len(files))
	for _, p := range files {
		if _, dup := f.known[p]; dup {
			continue
		}
		f.known[p] = struct{}{}
		f.catalog = append(f.catalog, p)
	}
	f.active = make(map[string]struct{})
	f.rev++
}

// Reset forgets the catalog and closes the selection view.
func (f *FileSelection) Reset() {
	f.Replace(nil)
	f.Close()
}

// Catalog returns a copy of the known files.
func (f *FileSelection) Catalog() []string {
	return append([]string(nil), f.catalog...)
}

// Toggle flips the active mark of path and returns the new state.
func (f *FileSelection) Toggle(path string) (bool, error) {
	if _, ok := f.known[path]; !ok {
		return false, ErrUnknownFile
	}
	f.rev++
	if _, on := f.active[path]; on {
		delete(f.active, path)
		return false, nil
	}
	f.active[path] = struct{}{}
	return true, nil
}

func (f *FileSelection) IsActive(path string) bool {
	_, ok := f.active[path]
	return ok
}

// Active returns the marked files in catalog order.
func (f *FileSelection) Active() []string {
	var out []string
	for _, p := range f.catalog {
		if _, ok := f.active[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Open builds the selection view from the entire catalog, regardless of
// active marks, and returns the candidates.
func (f *FileSelection) Open() []string {
	f.candidates = f.Catalog()
	f.viewOpen = true
	f.rev++
	return append([]string(nil), f.candidates...)
}

// Close hides the selection view and drops its candidates.
func (f *FileSelection) Close() {
	if !f.viewOpen && f.candidates == nil {
		return
	}
	f.viewOpen = false
	f.candidates = nil
	f.rev++
}

func (f *FileSelection) IsOpen() bool {
	return f.viewOpen
}

func (f *FileSelection) Candidates() []string {
	return append([]string(nil), f.candidates...)
}
