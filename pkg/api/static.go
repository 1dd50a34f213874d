package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// staticHandler serves pre-built pages from a directory. A request for
// /admin/dashboard resolves to admin/dashboard, admin/dashboard.html or
// admin/dashboard/index.html, whichever exists first.
type staticHandler struct {
	root string
}

func newStaticHandler(root string) *staticHandler {
	return &staticHandler{root: root}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	file, ok := h.resolve(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")

		return
	}

	http.ServeFile(w, r, file)
}

func (h *staticHandler) resolve(urlPath string) (string, bool) {
	// path.Clean on a rooted path cannot climb above the root.
	clean := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	base := filepath.Join(h.root, filepath.FromSlash(clean))

	candidates := []string{
		base,
		base + ".html",
		filepath.Join(base, "index.html"),
	}

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && !info.IsDir() {
			return c, true
		}
	}

	return "", false
}
