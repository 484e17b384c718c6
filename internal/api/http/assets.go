// internal/api/http/assets.go
package http

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/viva/internal/storage"
)

// MountAssets serves question images straight from the blob store.
func MountAssets(r chi.Router, bs storage.BlobStore) {
	// GET /assets/*   -> returns the blob at whatever follows /assets/
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := bs.Get(r.Context(), key)
		switch {
		case errors.Is(err, storage.ErrBlobNotFound), errors.Is(err, storage.ErrBadKey):
			writeError(w, http.StatusNotFound, "asset not found")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", storage.ContentType(path.Base(key)))
		_, _ = io.Copy(w, rc)
	})
}
