package server

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const indexPage = "index.html"

// helpFS hides dotfiles and directories without an index page, which
// http.FileServer would otherwise list.
type helpFS struct {
	fs.FS

	// blocked names files under the root that are never served.
	blocked map[string]struct{}
}

func (h helpFS) Open(name string) (fs.File, error) {
	if _, ok := h.blocked[name]; ok || hidden(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	f, err := h.FS.Open(name)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if st.IsDir() {
		if _, err := fs.Stat(h.FS, path.Join(name, indexPage)); err != nil {
			f.Close()
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
	}

	return f, nil
}

// relativeTo returns p as a slash separated fs.FS name relative to root, and
// whether p lies under root at all.
func relativeTo(root, p string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func hidden(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if len(seg) > 1 && seg[0] == '.' {
			return true
		}
	}
	return false
}

// staticHandler serves files under root. Path cleaning and the refusal of
// paths outside root come from http.FileServer and os.DirFS.
type staticHandler struct {
	fsys  fs.FS
	files http.Handler
}

// newStaticHandler serves root. Any of blocked that resolves under root, such
// as the license file, answers 404.
func newStaticHandler(root string, blocked ...string) *staticHandler {
	fsys := helpFS{FS: os.DirFS(root), blocked: make(map[string]struct{})}
	for _, p := range blocked {
		if rel, ok := relativeTo(root, p); ok {
			fsys.blocked[rel] = struct{}{}
		}
	}
	return &staticHandler{
		fsys:  fsys,
		files: http.FileServer(http.FS(fsys)),
	}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	// http.FileServer answers ".../index.html" with a redirect to ".../".
	// Help pages link to index.html directly, so serve it in place.
	if path.Base(r.URL.Path) == indexPage {
		h.serveFile(w, r, strings.TrimPrefix(path.Clean(r.URL.Path), "/"))
		return
	}

	h.files.ServeHTTP(w, r)
}

func (h *staticHandler) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := h.fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || st.IsDir() {
		http.NotFound(w, r)
		return
	}

	rs, ok := f.(io.ReadSeeker)
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	http.ServeContent(w, r, st.Name(), st.ModTime(), rs)
}
