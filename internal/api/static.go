package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
)

// index serves the configured index file for "/" and "/index.html".
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(s.opts.ServeDir, filepath.FromSlash(s.opts.IndexFile))
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("open index", "path", path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) static(w http.ResponseWriter, r *http.Request) {
	http.FileServer(http.Dir(s.opts.ServeDir)).ServeHTTP(w, r)
}
