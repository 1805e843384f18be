package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"photogen/internal/domain"
	"photogen/pkg/zip"
)

// GeneratedFile streams a stored generated image by file name.
func (a *App) GeneratedFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, err := a.Store.GeneratedPath(name)
	if err != nil {
		a.fail(w, r, err, "")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	http.ServeFile(w, r, path)
}

// ConvertAsset returns the asset re-encoded as ?format=jpg|png.
func (a *App) ConvertAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "png"
	}
	target, ok := domain.ParseEncoding(format)
	if !ok {
		a.error(w, http.StatusBadRequest, "invalid_input", fmt.Sprintf("unknown format %q", format))
		return
	}
	data, enc, err := a.Converter.Convert(r.Context(), assetID, target)
	if err != nil {
		a.fail(w, r, err, "")
		return
	}
	w.Header().Set("Content-Type", enc.MIME())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", assetID, enc.Ext()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// BundleAsset returns a zip with the asset in both downloadable encodings.
func (a *App) BundleAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	asset, err := a.Store.ResolveGenerated(r.Context(), assetID)
	if err != nil {
		a.fail(w, r, err, "")
		return
	}
	var files []zip.Asset
	for _, target := range []domain.Encoding{domain.EncodingPNG, domain.EncodingJPEG} {
		data, enc, err := a.Converter.Convert(r.Context(), asset.ID, target)
		if err != nil {
			a.fail(w, r, err, "")
			return
		}
		files = append(files, zip.Asset{
			Filename: asset.ID + "." + enc.Ext(),
			MIME:     enc.MIME(),
			Data:     data,
			Modified: asset.CreatedAt,
		})
	}
	archive, err := zip.ArchiveAssets(files)
	if err != nil {
		a.fail(w, r, err, "")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zip", asset.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
